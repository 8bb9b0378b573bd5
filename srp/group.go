package srp

import (
	"crypto/sha256"
	"math/big"
)

// Group holds the Diffie-Hellman group parameters (N, g) an SRP deployment
// agreed on, plus an optional multiplier override.
//
// Group values are immutable by convention: do not modify N, G or K after
// construction.
type Group struct {
	// N is the large safe prime
	N *big.Int

	// G is the generator
	G *big.Int

	// K overrides the SRP-6a multiplier parameter. When nil the standard
	// k = H(N | PAD(g)) is used. Some firmwares pin a fixed multiplier;
	// setting K lets a deployment match them.
	K *big.Int
}

// rfc5054Prime2048 is the 2048-bit group prime from RFC 5054, appendix A.
const rfc5054Prime2048 = "AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07" +
	"FC3192943DB56050A37329CBB4A099ED8193E0757767A13DD52312AB4B03310D" +
	"CD7F48A9DA04FD50E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE8" +
	"2918A9962F0B93B855F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA7" +
	"1D281E446B14773BCA97B43A23FB801676BD207A436C6481F1D2B90787174" +
	"61A5B9D32E688F87748544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB" +
	"3786160279004E57AE6AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C" +
	"38271AE35F8E9DBFBB694B5C803D89F7AE435DE236D525F54759B65E372FCD68" +
	"EF20FA7111F9E4AFF73"

var (
	prime2048 = mustParseHex(rfc5054Prime2048)
	generator = big.NewInt(2)
)

// Group2048 returns the RFC 5054 2048-bit group with generator 2 and the
// standard computed multiplier.
func Group2048() Group {
	return Group{N: prime2048, G: generator}
}

// multiplier returns the SRP-6a k parameter for the group: the configured
// override when present, H(N | PAD(g)) otherwise.
func (g Group) multiplier() *big.Int {
	if g.K != nil {
		return g.K
	}
	h := sha256.New()
	h.Write(g.N.Bytes())
	h.Write(pad(g.G, g.byteLen()))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// byteLen returns the length of N in bytes, used to pad group elements.
func (g Group) byteLen() int {
	return (g.N.BitLen() + 7) / 8
}

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("srp: invalid group constant")
	}
	return n
}

// pad left-pads the big-endian representation of v to size bytes.
func pad(v *big.Int, size int) []byte {
	b := v.Bytes()
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
