// Package srp implements the client side of an SRP-6a zero-knowledge
// password proof exchange, as spoken by router firmwares that refuse to
// accept a plaintext password over their management interface.
//
// The exchange is mutual: the client proves knowledge of the password
// without transmitting it, and the server proves it holds the matching
// verifier. A ClientSession exists for the duration of a single login
// attempt:
//
//	cs, err := srp.NewClientSession(srp.Group2048(), username, password)
//	defer cs.Destroy()
//	// send username and cs.A() to the server, receive salt and B
//	m1, err := cs.ProcessChallenge(salt, serverB)
//	// send m1, receive the server proof m2
//	err = cs.VerifyServerProof(m2)
//	key := cs.Key() // non-nil only after the server proof verified
//
// The private ephemeral value is freshly random per session and is never
// reused; Destroy wipes the session secrets. All hashing uses SHA-256.
package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

// ErrServerProof is returned when the server's proof value does not match
// the expected one. This means the server does not hold the password
// verifier the client expects (man in the middle, or a protocol/parameter
// mismatch) and must be treated as an authentication failure even if the
// server claimed success.
var ErrServerProof = errors.New("srp: server proof mismatch")

// ephemeralSize is the size in bytes of the random private ephemeral value.
const ephemeralSize = 32

// ClientSession holds the transient state of one SRP login attempt.
// It must not outlive the login call that created it.
type ClientSession struct {
	group    Group
	username string
	password []byte

	a    *big.Int // private ephemeral, fresh per session
	bigA *big.Int // public ephemeral A = g^a mod N
	bigB *big.Int // server public ephemeral

	m1  []byte // client proof, set by ProcessChallenge
	key []byte // shared session key, set by ProcessChallenge

	verified  bool
	destroyed bool
}

// NewClientSession starts a new exchange for the given identity. The private
// ephemeral value is drawn from crypto/rand on every call.
func NewClientSession(group Group, username, password string) (*ClientSession, error) {
	if group.N == nil || group.G == nil {
		return nil, errors.New("srp: group parameters are not set")
	}
	if username == "" {
		return nil, errors.New("srp: username is empty")
	}

	// Draw a non-zero private ephemeral. A = g^a mod N must be a valid
	// group element, so redraw in the (astronomically unlikely) degenerate
	// cases.
	var a, bigA *big.Int
	for {
		buf := make([]byte, ephemeralSize)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("srp: cannot generate ephemeral value: %w", err)
		}
		a = new(big.Int).SetBytes(buf)
		if a.Sign() == 0 {
			continue
		}
		bigA = new(big.Int).Exp(group.G, a, group.N)
		if new(big.Int).Mod(bigA, group.N).Sign() != 0 {
			break
		}
	}

	return &ClientSession{
		group:    group,
		username: username,
		password: []byte(password),
		a:        a,
		bigA:     bigA,
	}, nil
}

// Username returns the identity this session authenticates.
func (s *ClientSession) Username() string {
	return s.username
}

// A returns the big-endian bytes of the client public ephemeral value.
func (s *ClientSession) A() []byte {
	return s.bigA.Bytes()
}

// ProcessChallenge consumes the server challenge (salt and public ephemeral
// value B) and returns the client proof M1 = H(A | B | K).
//
// A malformed challenge (empty salt, B congruent to zero mod N, zero
// scrambling parameter) fails the attempt; no partial state is kept either
// way, the caller discards the session on error.
func (s *ClientSession) ProcessChallenge(salt, serverB []byte) ([]byte, error) {
	if s.destroyed {
		return nil, errors.New("srp: session already destroyed")
	}
	if s.m1 != nil {
		return nil, errors.New("srp: challenge already processed")
	}
	if len(salt) == 0 {
		return nil, errors.New("srp: server sent an empty salt")
	}
	if len(serverB) == 0 {
		return nil, errors.New("srp: server sent an empty ephemeral value")
	}

	n := s.group.N
	size := s.group.byteLen()

	bigB := new(big.Int).SetBytes(serverB)
	if new(big.Int).Mod(bigB, n).Sign() == 0 {
		return nil, errors.New("srp: server ephemeral value is zero mod N")
	}

	// Scrambling parameter u = H(PAD(A) | PAD(B)).
	u := hashInt(pad(s.bigA, size), pad(bigB, size))
	if u.Sign() == 0 {
		return nil, errors.New("srp: scrambling parameter is zero")
	}

	// Password-derived private key x = H(salt | H(username ":" password)).
	inner := sha256.Sum256(append(append([]byte(s.username), ':'), s.password...))
	x := hashInt(salt, inner[:])

	// Shared secret S = (B - k*g^x) ^ (a + u*x) mod N.
	k := s.group.multiplier()
	gx := new(big.Int).Exp(s.group.G, x, n)
	base := new(big.Int).Mul(k, gx)
	base.Sub(bigB, base)
	base.Mod(base, n)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, s.a)
	secret := new(big.Int).Exp(base, exp, n)

	// Session key and client proof.
	keySum := sha256.Sum256(secret.Bytes())
	s.key = keySum[:]
	s.bigB = bigB
	s.m1 = hashConcat(s.bigA.Bytes(), bigB.Bytes(), s.key)

	wipeInt(x)
	wipeInt(secret)

	m1 := make([]byte, len(s.m1))
	copy(m1, s.m1)
	return m1, nil
}

// VerifyServerProof checks the server proof M2 against the expected
// H(A | M1 | K). It returns ErrServerProof on mismatch; the session key is
// only released (via Key) after this check passes.
func (s *ClientSession) VerifyServerProof(m2 []byte) error {
	if s.destroyed {
		return errors.New("srp: session already destroyed")
	}
	if s.m1 == nil {
		return errors.New("srp: challenge not processed yet")
	}

	expected := hashConcat(s.bigA.Bytes(), s.m1, s.key)
	if subtle.ConstantTimeCompare(expected, m2) != 1 {
		return ErrServerProof
	}

	s.verified = true
	return nil
}

// Key returns a copy of the shared session key, or nil until the server
// proof has been verified.
func (s *ClientSession) Key() []byte {
	if !s.verified || s.destroyed {
		return nil
	}
	key := make([]byte, len(s.key))
	copy(key, s.key)
	return key
}

// Destroy wipes the session secrets. The session is unusable afterwards;
// calling Destroy again is a no-op.
func (s *ClientSession) Destroy() {
	if s.destroyed {
		return
	}
	for i := range s.password {
		s.password[i] = 0
	}
	for i := range s.key {
		s.key[i] = 0
	}
	wipeInt(s.a)
	s.verified = false
	s.destroyed = true
}

// hashConcat returns SHA-256 over the concatenation of the inputs.
func hashConcat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// hashInt returns SHA-256 over the concatenation of the inputs as a big.Int.
func hashInt(parts ...[]byte) *big.Int {
	return new(big.Int).SetBytes(hashConcat(parts...))
}

// wipeInt zeroes the storage behind a big.Int.
func wipeInt(v *big.Int) {
	if v == nil {
		return
	}
	bits := v.Bits()
	for i := range bits {
		bits[i] = 0
	}
	v.SetInt64(0)
}
