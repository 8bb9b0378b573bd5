// Package fastgate implements the device adapter for the Fastgate Huawei
// DN8245f2 router.
//
// The DN8245f2 exposes every service through a single status.cgi endpoint
// selected with an nvget parameter, and uses a two-step form login: a first
// request obtains a one-shot login token, a second one submits the
// credentials (password base64-encoded by the firmware's convention)
// together with that token.
package fastgate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gatescrape/gatescrape/adapter"
	"github.com/gatescrape/gatescrape/scraper"
	"github.com/gatescrape/gatescrape/session"
	"github.com/gatescrape/gatescrape/transport"
)

// Model is the router model identifier.
const Model = "fastgate-dn8245f2"

// nvget service selectors understood by status.cgi.
const (
	svcLogin   = "login_confirm"
	svcDevices = "connected_device_list"
)

// Scraper is the Fastgate DN8245f2 device adapter.
type Scraper struct {
	adapter.Base

	creds  scraper.Credentials
	client transport.Client
}

// New creates an adapter for the router at host using the default HTTP
// transport.
func New(host, username, password string) *Scraper {
	return NewWithClient(
		scraper.Credentials{Host: host, Username: username, Password: password},
		transport.NewHTTPClient(host),
	)
}

// NewWithClient creates an adapter over an explicit transport. Used by tests
// and by callers that need custom transport settings.
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

// ListDevices returns the devices connected to the router.
func (s *Scraper) ListDevices(ctx context.Context) ([]scraper.DeviceRecord, error) {
	if err := s.Require(scraper.OpListDevices); err != nil {
		return nil, err
	}

	resp, err := adapter.Fetch(ctx, &s.Base,
		func(ctx context.Context) (*transport.Response, error) {
			return s.request(ctx, svcDevices, nil)
		},
		s.isLoginDemand,
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

// request performs one status.cgi request for the given nvget service.
func (s *Scraper) request(ctx context.Context, svc string, extra url.Values) (*transport.Response, error) {
	params := url.Values{"nvget": {svc}}
	for key, vals := range extra {
		params[key] = vals
	}
	return s.client.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "status.cgi",
		Params: params,
	})
}

// loginConfirm is the login_confirm object status.cgi wraps its login
// answers in. All values are strings, the firmware's convention.
type loginConfirm struct {
	LoginStatus string `json:"login_status"`
	LoginLocked string `json:"login_locked"`
	Token       string `json:"token"`
	CheckUser   string `json:"check_user"`
	CheckPwd    string `json:"check_pwd"`
}

type loginConfirmPayload struct {
	LoginConfirm loginConfirm `json:"login_confirm"`
}

// isLoginDemand reports whether a status.cgi response is the router's
// "must log in" answer rather than the requested data.
func (s *Scraper) isLoginDemand(resp *transport.Response) bool {
	var payload loginConfirmPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return false
	}
	return payload.LoginConfirm.LoginStatus == "0"
}

// loginFlow adapts the scraper's login exchange to session.LoginFlow.
type loginFlow struct {
	s *Scraper
}

func (f loginFlow) Login(ctx context.Context) (string, error) {
	return f.s.login(ctx)
}

// login runs the two-step token form login. It always starts from a clean
// transport session.
func (s *Scraper) login(ctx context.Context) (string, error) {
	if err := s.client.Reset(); err != nil {
		return "", fmt.Errorf("cannot reset transport session: %w", err)
	}

	// Step one: cmd=7 obtains the one-shot login token.
	first, err := s.request(ctx, svcLogin, url.Values{"cmd": {"7"}})
	if err != nil {
		return "", err
	}
	var firstPayload loginConfirmPayload
	if err := json.Unmarshal(first.Body, &firstPayload); err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}
	if firstPayload.LoginConfirm.LoginLocked == "1" {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonLoginLocked}
	}
	token := firstPayload.LoginConfirm.Token
	if token == "" {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMissingToken}
	}

	// Step two: cmd=3 submits the credentials with the token.
	second, err := s.request(ctx, svcLogin, url.Values{
		"cmd":      {"3"},
		"username": {s.creds.Username},
		"password": {base64.StdEncoding.EncodeToString([]byte(s.creds.Password))},
		"token":    {token},
	})
	if err != nil {
		return "", err
	}
	var secondPayload loginConfirmPayload
	if err := json.Unmarshal(second.Body, &secondPayload); err != nil {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonMalformedExchange, Err: err}
	}
	if secondPayload.LoginConfirm.CheckUser != "1" {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonWrongUsername}
	}
	if secondPayload.LoginConfirm.CheckPwd != "1" {
		return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonWrongPassword}
	}

	return token, nil
}

// parseDeviceList extracts device records from a connected_device_list
// response. The firmware flattens the list into indexed keys
// (dev_0_name, dev_0_mac, ...); rows with missing fields are skipped.
func parseDeviceList(body []byte) ([]scraper.DeviceRecord, error) {
	var payload struct {
		List map[string]string `json:"connected_device_list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &scraper.ParseError{Model: Model, Op: scraper.OpListDevices, Err: err}
	}
	if payload.List == nil {
		return nil, &scraper.ParseError{
			Model: Model,
			Op:    scraper.OpListDevices,
			Err:   fmt.Errorf("response has no connected_device_list object"),
		}
	}

	total, err := strconv.Atoi(payload.List["total_num"])
	if err != nil {
		return nil, &scraper.ParseError{
			Model: Model,
			Op:    scraper.OpListDevices,
			Err:   fmt.Errorf("invalid total_num %q", payload.List["total_num"]),
		}
	}

	devices := make([]scraper.DeviceRecord, 0, total)
	for i := 0; i < total; i++ {
		name, okName := payload.List[fmt.Sprintf("dev_%d_name", i)]
		mac, okMAC := payload.List[fmt.Sprintf("dev_%d_mac", i)]
		ip, okIP := payload.List[fmt.Sprintf("dev_%d_ip", i)]
		family, okFamily := payload.List[fmt.Sprintf("dev_%d_family", i)]
		network, okNetwork := payload.List[fmt.Sprintf("dev_%d_network", i)]
		if !okName || !okMAC || !okIP || !okFamily || !okNetwork {
			continue
		}
		devices = append(devices, scraper.DeviceRecord{
			Name: name,
			MAC:  mac,
			IP:   ip,
			Extra: map[string]string{
				"family":  family,
				"network": network,
			},
		})
	}

	return devices, nil
}

// compile-time interface check
var _ scraper.Scraper = (*Scraper)(nil)
