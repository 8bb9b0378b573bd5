// Package technicolor implements the device adapter for the Technicolor
// TG789vac v2 gateway.
//
// The TG789vac v2 never accepts a plaintext password: its login is an
// SRP-6a zero-knowledge proof exchange against the /authenticate endpoint,
// protected by a CSRF token that every HTML page of the UI carries in a
// meta tag. The firmware uses the RFC 5054 2048-bit group with SHA-256 and
// pins a fixed multiplier value.
package technicolor

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gatescrape/gatescrape/adapter"
	"github.com/gatescrape/gatescrape/scraper"
	"github.com/gatescrape/gatescrape/session"
	"github.com/gatescrape/gatescrape/srp"
	"github.com/gatescrape/gatescrape/transport"
)

// Model is the router model identifier.
const Model = "technicolor-tg789vacv2"

// multiplierHex is the SRP multiplier the firmware pins instead of the
// computed H(N | PAD(g)).
const multiplierHex = "05b9e8ef059c6b32ea59fc1d322d37f04aa30bae5aa9003b8321e21ddb04e300"

// deploymentGroup returns the SRP group as provisioned on this firmware.
func deploymentGroup() srp.Group {
	g := srp.Group2048()
	k, ok := new(big.Int).SetString(multiplierHex, 16)
	if !ok {
		panic("technicolor: invalid multiplier constant")
	}
	g.K = k
	return g
}

var (
	csrfPattern  = regexp.MustCompile(`name="CSRFtoken"[^>]*content="([^"]+)"`)
	loginPageTag = []byte("<title>Login</title>")
)

// Scraper is the Technicolor TG789vac v2 device adapter.
type Scraper struct {
	adapter.Base

	creds  scraper.Credentials
	client transport.Client

	// csrf is the latest CSRF token observed in an HTML response
	csrf string
}

// New creates an adapter for the gateway at host using the default HTTP
// transport.
func New(host, username, password string) *Scraper {
	return NewWithClient(
		scraper.Credentials{Host: host, Username: username, Password: password},
		transport.NewHTTPClient(host),
	)
}

// NewWithClient creates an adapter over an explicit transport.
func NewWithClient(creds scraper.Credentials, client transport.Client) *Scraper {
	s := &Scraper{creds: creds, client: client}
	s.Base = adapter.Base{
		ModelName: Model,
		Caps:      scraper.NewCapabilitySet(scraper.OpListDevices),
		Machine:   session.NewMachine(Model, loginFlow{s}),
	}
	return s
}

// Close releases the transport.
func (s *Scraper) Close() error {
	return s.client.Close()
}

// ListDevices returns the devices connected to the gateway, parsed from the
// device modal page.
func (s *Scraper) ListDevices(ctx context.Context) ([]scraper.DeviceRecord, error) {
	if err := s.Require(scraper.OpListDevices); err != nil {
		return nil, err
	}

	resp, err := adapter.Fetch(ctx, &s.Base,
		func(ctx context.Context) (*transport.Response, error) {
			return s.request(ctx, http.MethodGet, "modals/device-modal.lp", nil)
		},
		func(resp *transport.Response) bool { return isLoginPage(resp.Body) },
	)
	if err != nil {
		return nil, err
	}

	return parseDeviceList(resp.Body)
}

// ListSMS is not available on this model.
func (s *Scraper) ListSMS(ctx context.Context) ([]scraper.SMSRecord, error) {
	if err := s.Require(scraper.OpListSMS); err != nil {
		return nil, err
	}
	return nil, nil
}

// request performs one request and refreshes the cached CSRF token from any
// HTML the gateway sends back.
func (s *Scraper) request(ctx context.Context, method, path string, params url.Values) (*transport.Response, error) {
	resp, err := s.client.Do(ctx, transport.Request{Method: method, Path: path, Params: params})
	if err != nil {
		return nil, err
	}
	if m := csrfPattern.FindSubmatch(resp.Body); m != nil {
		s.csrf = string(m[1])
	}
	return resp, nil
}

// isLoginPage reports whether the gateway answered with its login page
// instead of the requested content.
func isLoginPage(body []byte) bool {
	return bytes.Contains(body, loginPageTag)
}

// loginFlow adapts the scraper's login exchange to session.LoginFlow.
type loginFlow struct {
	s *Scraper
}

func (f loginFlow) Login(ctx context.Context) (string, error) {
	return f.s.login(ctx)
}

// authenticateResponse is the JSON shape of both /authenticate steps.
// Values are lowercase hex.
type authenticateResponse struct {
	Salt  string `json:"s"`
	B     string `json:"B"`
	M     string `json:"M"`
	Error string `json:"error"`
}

// login runs the SRP exchange. The exchange state lives only inside this
// call and is wiped on every exit path.
func (s *Scraper) login(ctx context.Context) (string, error) {
	// Initial contact: picks up the CSRF token, and short-circuits when
	// the transport-level session is somehow still honoured.
	first, err := s.request(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return "", err
	}
	if !isLoginPage(first.Body) {
		if s.csrf == "" {
			return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMissingToken}
		}
		return s.csrf, nil
	}
	if s.csrf == "" {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMissingToken}
	}

	cs, err := srp.NewClientSession(deploymentGroup(), s.creds.Username, s.creds.Password)
	if err != nil {
		return "", fmt.Errorf("cannot start SRP session: %w", err)
	}
	defer cs.Destroy()

	// Step one: send the identity and public ephemeral, receive the
	// challenge.
	second, err := s.request(ctx, http.MethodPost, "authenticate", url.Values{
		"CSRFtoken": {s.csrf},
		"I":         {cs.Username()},
		"A":         {hex.EncodeToString(cs.A())},
	})
	if err != nil {
		return "", err
	}
	var challenge authenticateResponse
	if err := json.Unmarshal(second.Body, &challenge); err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}
	if challenge.Salt == "" || challenge.B == "" {
		if challenge.Error == "failed" {
			return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonWrongUsername}
		}
		return "", &scraper.AuthError{
			Model:  Model,
			Reason: scraper.ReasonMalformedExchange,
			Err:    fmt.Errorf("challenge lacks salt or ephemeral value"),
		}
	}
	salt, err := hex.DecodeString(challenge.Salt)
	if err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}
	serverB, err := hex.DecodeString(challenge.B)
	if err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}

	m1, err := cs.ProcessChallenge(salt, serverB)
	if err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}

	// Step two: send the client proof, receive the server proof.
	third, err := s.request(ctx, http.MethodPost, "authenticate", url.Values{
		"CSRFtoken": {s.csrf},
		"M":         {hex.EncodeToString(m1)},
	})
	if err != nil {
		return "", err
	}
	var proof authenticateResponse
	if err := json.Unmarshal(third.Body, &proof); err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}
	if proof.Error != "" || proof.M == "" {
		// The firmware reports a failed client proof here, which means
		// the password did not match the stored verifier.
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonWrongPassword}
	}
	m2, err := hex.DecodeString(proof.M)
	if err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}

	// The server must prove it holds the verifier, even though it already
	// claimed success.
	if err := cs.VerifyServerProof(m2); err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonProofMismatch, Err: err}
	}

	return hex.EncodeToString(cs.Key()), nil
}

var (
	rowPattern  = regexp.MustCompile(`(?s)<tr[^>]*>(.*?)</tr>`)
	cellPattern = regexp.MustCompile(`(?s)<td[^>]*>(.*?)</td>`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
	macPattern  = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)
	ipPattern   = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
)

// parseDeviceList extracts device records from the device modal page. Rows
// are table rows carrying a MAC address cell; header and decoration rows
// have none and are skipped.
func parseDeviceList(body []byte) ([]scraper.DeviceRecord, error) {
	if !bytes.Contains(body, []byte("<table")) {
		return nil, &scraper.ParseError{
			Model: Model,
			Op:    scraper.OpListDevices,
			Err:   fmt.Errorf("device modal has no table"),
		}
	}

	var devices []scraper.DeviceRecord
	for _, row := range rowPattern.FindAllSubmatch(body, -1) {
		var device scraper.DeviceRecord
		for _, cell := range cellPattern.FindAllSubmatch(row[1], -1) {
			text := strings.TrimSpace(tagPattern.ReplaceAllString(string(cell[1]), ""))
			switch {
			case macPattern.MatchString(text):
				device.MAC = text
			case ipPattern.MatchString(text):
				device.IP = text
			case text != "" && device.Name == "":
				device.Name = text
			}
		}
		if device.MAC != "" {
			devices = append(devices, device)
		}
	}

	return devices, nil
}

// compile-time interface check
var _ scraper.Scraper = (*Scraper)(nil)
