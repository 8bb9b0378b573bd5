package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gatescrape/gatescrape/scraper"
)

// LoginFlow performs one login exchange against the router and returns the
// opaque session token on success. Device adapters implement this with their
// model's flow (simple form submission, challenge-response, browser-driven).
//
// A LoginFlow performs exactly one attempt per call; retrying is the
// adapter's responsibility, bounded by the single-retry rule of the data
// operations.
type LoginFlow interface {
	Login(ctx context.Context) (token string, err error)
}

// Machine is the authentication state machine for one router session.
//
// Machine methods are safe for concurrent use, but the session contract
// remains one in-flight operation per adapter instance: the mutex protects
// state integrity (e.g. a snapshot export racing a status read), it does not
// make interleaved logins against the same router meaningful.
type Machine struct {
	mu    sync.Mutex
	model string
	flow  LoginFlow
	state State
}

// NewMachine creates a state machine in StatusUnauthenticated for the given
// device model, using flow to perform login exchanges.
func NewMachine(model string, flow LoginFlow) *Machine {
	return &Machine{
		model: model,
		flow:  flow,
		state: State{Status: StatusUnauthenticated},
	}
}

// State returns a copy of the current session state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current authentication status.
func (m *Machine) Status() Status {
	return m.State().Status
}

// Token returns the current session token ("" when not authenticated).
func (m *Machine) Token() string {
	return m.State().Token
}

// EnsureAuthenticated makes sure the session is authenticated, logging in
// only if necessary.
//
// When the session is already authenticated it returns immediately without
// any network activity. Otherwise it performs exactly one login attempt via
// the configured LoginFlow: on success the session becomes
// StatusAuthenticated and stores the returned token; on failure it becomes
// StatusFailed and the error is a *scraper.AuthError describing the reason.
func (m *Machine) EnsureAuthenticated(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status == StatusAuthenticated {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	token, err := m.flow.Login(ctx)
	if err != nil {
		m.setFailed()
		var authErr *scraper.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		// Anything the flow did not classify is a transport-level failure.
		return &scraper.AuthError{Model: m.model, Reason: scraper.ReasonTransport, Err: err}
	}
	if token == "" {
		m.setFailed()
		return &scraper.AuthError{Model: m.model, Reason: scraper.ReasonMissingToken}
	}

	m.mu.Lock()
	m.state = State{
		Status:   StatusAuthenticated,
		Token:    token,
		IssuedAt: time.Now().UTC(),
	}
	m.mu.Unlock()
	return nil
}

// Invalidate discards the session token and returns the machine to
// StatusUnauthenticated. Adapters call this when the router rejects an
// authenticated request (server-side session expiry) before retrying the
// operation once.
func (m *Machine) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Status: StatusUnauthenticated}
}

func (m *Machine) setFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Status: StatusFailed}
}
