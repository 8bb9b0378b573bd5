// Package tplink implements the device adapter for the TP-Link M7000 mobile
// router.
//
// The M7000 management UI is JavaScript-only: every piece of data is fetched
// by the page itself through an in-page callJSON API, and the login form has
// no stable endpoint to POST against. The adapter therefore drives a real
// browser (transport.Browser) instead of an HTTP client, and scrapes the SMS
// inbox by injecting a script that calls the page's own API and drops the
// result into a scratch div.
package tplink

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatescrape/gatescrape/adapter"
	"github.com/gatescrape/gatescrape/scraper"
	"github.com/gatescrape/gatescrape/session"
	"github.com/gatescrape/gatescrape/transport"
)

// Model is the router model identifier.
const Model = "tplink-m7000"

const (
	// smsPerPage is the page size the firmware accepts. Other values make
	// the message module return an error.
	smsPerPage = 8

	// scriptRetries bounds the injected-script attempts per page. The
	// callJSON bridge is flaky right after a page load.
	scriptRetries = 3

	// loginWait is how long the login outcome may take to render.
	loginWait = 2 * time.Second

	// scriptWait is how long one injected script may take to fill its
	// scratch div.
	scriptWait = 5 * time.Second

	// pollInterval is the pause between element polls.
	pollInterval = 200 * time.Millisecond
)

// wrongPasswordMarker is the text the noteDiv element renders on a failed
// login.
const wrongPasswordMarker = "Incorrect password,please try again"

// timeLayout is the receivedTime format of the message module.
const timeLayout = "2006-01-02 15:04:05"

// BrowserFactory produces a browser handle. The adapter calls it lazily on
// the first operation that needs the browser, so constructing a Scraper is
// cheap and side-effect free.
type BrowserFactory func(ctx context.Context) (transport.Browser, error)

// Scraper is the TP-Link M7000 device adapter.
type Scraper struct {
	adapter.Base

	creds   scraper.Credentials
	factory BrowserFactory

	// browser is nil until the first operation acquires it
	browser transport.Browser
}

// New creates an adapter for the router at host. The M7000 login form asks
// for a password only. The browser is acquired from factory on first use and
// released by Close.
func New(host, password string, factory BrowserFactory) *Scraper {
	s := &Scraper{
		creds:   scraper.Credentials{Host: host, Password: password},
		factory: factory,
	}
	s.Base = adapter.Base{
		ModelName: Model,
		Caps:      scraper.NewCapabilitySet(scraper.OpListSMS),
		Machine:   session.NewMachine(Model, loginFlow{s}),
	}
	return s
}

// Close releases the browser handle if one was acquired. Safe to call more
// than once.
func (s *Scraper) Close() error {
	if s.browser == nil {
		return nil
	}
	b := s.browser
	s.browser = nil
	return b.Close()
}

// handle returns the browser, acquiring it on first use.
func (s *Scraper) handle(ctx context.Context) (transport.Browser, error) {
	if s.browser != nil {
		return s.browser, nil
	}
	b, err := s.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot acquire browser: %w", err)
	}
	s.browser = b
	return b, nil
}

func (s *Scraper) pageURL(path string) string {
	return "http://" + s.creds.Host + "/" + path
}

// ListDevices is not available on this model.
func (s *Scraper) ListDevices(ctx context.Context) ([]scraper.DeviceRecord, error) {
	if err := s.Require(scraper.OpListDevices); err != nil {
		return nil, err
	}
	return nil, nil
}

// smsResult is what one authenticated inbox fetch produced. denied marks the
// UI having bounced us back to the login page.
type smsResult struct {
	denied   bool
	messages []scraper.SMSRecord
}

// ListSMS returns the full SMS inbox, newest first.
func (s *Scraper) ListSMS(ctx context.Context) ([]scraper.SMSRecord, error) {
	if err := s.Require(scraper.OpListSMS); err != nil {
		return nil, err
	}

	res, err := adapter.Fetch(ctx, &s.Base, s.fetchInbox,
		func(r smsResult) bool { return r.denied },
	)
	if err != nil {
		return nil, err
	}
	return res.messages, nil
}

// fetchInbox navigates to the settings page and pulls every inbox page.
func (s *Scraper) fetchInbox(ctx context.Context) (smsResult, error) {
	b, err := s.handle(ctx)
	if err != nil {
		return smsResult{}, err
	}
	if err := b.Navigate(ctx, s.pageURL("settings.html")); err != nil {
		return smsResult{}, err
	}
	loggedIn, err := s.isLoggedIn(ctx, b)
	if err != nil {
		return smsResult{}, err
	}
	if !loggedIn {
		return smsResult{denied: true}, nil
	}

	total, first, err := s.fetchPage(ctx, b, 1)
	if err != nil {
		return smsResult{}, err
	}

	// The firmware repeats messages near page boundaries, so collect by
	// inbox index and sort afterwards.
	byIndex := make(map[string]scraper.SMSRecord)
	collect := func(msgs []scraper.SMSRecord) {
		for _, m := range msgs {
			byIndex[m.Extra["index"]] = m
		}
	}
	collect(first)

	pages := (total + smsPerPage - 1) / smsPerPage
	for page := 2; page <= pages; page++ {
		_, msgs, err := s.fetchPage(ctx, b, page)
		if err != nil {
			return smsResult{}, err
		}
		collect(msgs)
	}

	messages := make([]scraper.SMSRecord, 0, len(byIndex))
	for _, m := range byIndex {
		messages = append(messages, m)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
	return smsResult{messages: messages}, nil
}

// smsListScript builds the injected script. It calls the page's own callJSON
// bridge against the message module (action 2 reads the inbox, box 0) and
// writes the outcome into the scratch div identified by divID.
func smsListScript(divID string, page int) string {
	return fmt.Sprintf(`
callJSON({
    module: Globals.MODULES.message,
    action: 2,
    data: { pageNumber: %d, amountPerPage: %d, box: 0 },
    success: function(a) {
        var el = document.getElementById('%s');
        if (0 === a.result) {
            el.textContent = JSON.stringify({totalNumber: a.totalNumber, messageList: a.messageList});
            el.setAttribute('status', 'Ready');
        } else {
            el.setAttribute('status', 'Error');
        }
    },
    error: function(err) {
        document.getElementById('%s').setAttribute('status', 'Error');
    }
});`, page, smsPerPage, divID, divID)
}

func createDivScript(divID string) string {
	return fmt.Sprintf(`var d = document.createElement('div');
d.setAttribute('id', '%s');
d.setAttribute('status', 'Processing');
document.body.appendChild(d);`, divID)
}

func removeDivScript(divID string) string {
	return fmt.Sprintf(`var d = document.getElementById('%s'); if (d) { d.remove(); }`, divID)
}

// fetchPage retrieves one inbox page through the injected script. It returns
// the total message count reported by the firmware and the page's messages.
func (s *Scraper) fetchPage(ctx context.Context, b transport.Browser, page int) (int, []scraper.SMSRecord, error) {
	divID := uuid.NewString()

	if err := b.ExecuteScript(ctx, createDivScript(divID)); err != nil {
		return 0, nil, err
	}
	defer func() { _ = b.ExecuteScript(ctx, removeDivScript(divID)) }()

	var body string
	for attempt := 0; attempt < scriptRetries; attempt++ {
		if err := b.ExecuteScript(ctx, smsListScript(divID, page)); err != nil {
			return 0, nil, err
		}

		status, err := s.awaitDiv(ctx, b, divID)
		if err != nil {
			return 0, nil, err
		}
		if status != "Ready" {
			continue
		}

		body, err = b.ElementText(ctx, "#"+divID)
		if err != nil {
			return 0, nil, err
		}
		return parseSMSPage([]byte(body))
	}

	return 0, nil, &transport.TransportError{
		Op:  "script",
		URL: s.pageURL("settings.html"),
		Err: fmt.Errorf("inbox page %d not ready after %d attempts", page, scriptRetries),
	}
}

// awaitDiv polls the scratch div until its status attribute leaves
// Processing, or the script window elapses.
func (s *Scraper) awaitDiv(ctx context.Context, b transport.Browser, divID string) (string, error) {
	deadline := time.Now().Add(scriptWait)
	for {
		status, err := b.ElementAttribute(ctx, "#"+divID, "status")
		if err == nil && status != "Processing" {
			return status, nil
		}
		if time.Now().After(deadline) {
			return "Error", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// smsEnvelope is the JSON the injected script stores in the scratch div.
type smsEnvelope struct {
	TotalNumber int          `json:"totalNumber"`
	MessageList []smsMessage `json:"messageList"`
}

type smsMessage struct {
	From         string `json:"from"`
	ReceivedTime string `json:"receivedTime"`
	Content      string `json:"content"`
	Index        int    `json:"index"`
	Unread       bool   `json:"unread"`
}

func parseSMSPage(body []byte) (int, []scraper.SMSRecord, error) {
	var envelope smsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return 0, nil, &scraper.ParseError{Model: Model, Op: scraper.OpListSMS, Err: err}
	}

	messages := make([]scraper.SMSRecord, 0, len(envelope.MessageList))
	for _, m := range envelope.MessageList {
		ts, err := time.Parse(timeLayout, m.ReceivedTime)
		if err != nil {
			return 0, nil, &scraper.ParseError{
				Model: Model,
				Op:    scraper.OpListSMS,
				Err:   fmt.Errorf("invalid receivedTime %q", m.ReceivedTime),
			}
		}
		messages = append(messages, scraper.SMSRecord{
			Number:    m.From,
			Timestamp: ts,
			Content:   m.Content,
			Extra: map[string]string{
				"index":  strconv.Itoa(m.Index),
				"unread": strconv.FormatBool(m.Unread),
			},
		})
	}
	return envelope.TotalNumber, messages, nil
}

// isLoggedIn reports whether the current page is an authenticated UI page.
// The login page has no populated container element.
func (s *Scraper) isLoggedIn(ctx context.Context, b transport.Browser) (bool, error) {
	text, err := b.ElementText(ctx, "#container")
	if err != nil {
		// No container element at all means the login page.
		return false, nil
	}
	return text != "", nil
}

// loginFlow adapts the scraper's login exchange to session.LoginFlow.
type loginFlow struct {
	s *Scraper
}

func (f loginFlow) Login(ctx context.Context) (string, error) {
	return f.s.login(ctx)
}

// login fills the password form and waits for the UI to settle on either the
// authenticated container or the wrong-password note. The returned token is
// an opaque marker; the real session lives in the browser.
func (s *Scraper) login(ctx context.Context) (string, error) {
	b, err := s.handle(ctx)
	if err != nil {
		return "", err
	}

	if err := b.Navigate(ctx, s.pageURL("")); err != nil {
		return "", err
	}

	// Already inside the UI: the browser session is still honoured.
	if loggedIn, err := s.isLoggedIn(ctx, b); err == nil && loggedIn {
		return uuid.NewString(), nil
	}

	if err := b.FillField(ctx, "#password", s.creds.Password); err != nil {
		return "", err
	}

	deadline := time.Now().Add(loginWait)
	for {
		if note, err := b.ElementText(ctx, "#noteDiv"); err == nil &&
			strings.HasPrefix(note, wrongPasswordMarker) {
			return "", &scraper.AuthError{Model: Model, Reason: scraper.ReasonWrongPassword}
		}

		loggedIn, err := s.isLoggedIn(ctx, b)
		if err != nil {
			return "", err
		}
		if loggedIn {
			return uuid.NewString(), nil
		}

		if time.Now().After(deadline) {
			return "", &scraper.AuthError{
				Model:  Model,
				Reason: scraper.ReasonTransport,
				Err:    fmt.Errorf("login outcome not rendered within %s", loginWait),
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// compile-time interface check
var _ scraper.Scraper = (*Scraper)(nil)
