package session

import (
	"context"
	"errors"
	"testing"

	"github.com/gatescrape/gatescrape/scraper"
)

// fakeFlow is a LoginFlow stub that counts attempts and returns canned
// results.
type fakeFlow struct {
	attempts int
	token    string
	err      error
}

func (f *fakeFlow) Login(ctx context.Context) (string, error) {
	f.attempts++
	return f.token, f.err
}

func TestNewMachineStartsUnauthenticated(t *testing.T) {
	m := NewMachine("test-model", &fakeFlow{token: "tok"})

	if m.Status() != StatusUnauthenticated {
		t.Errorf("Status() = %s, want %s", m.Status(), StatusUnauthenticated)
	}
	if m.Token() != "" {
		t.Errorf("Token() = %q, want empty", m.Token())
	}
}

func TestEnsureAuthenticatedSuccess(t *testing.T) {
	flow := &fakeFlow{token: "session-token"}
	m := NewMachine("test-model", flow)

	if err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated failed: %v", err)
	}

	state := m.State()
	if state.Status != StatusAuthenticated {
		t.Errorf("Status = %s, want %s", state.Status, StatusAuthenticated)
	}
	if state.Token != "session-token" {
		t.Errorf("Token = %q, want session-token", state.Token)
	}
	if state.IssuedAt.IsZero() {
		t.Error("IssuedAt is zero after successful login")
	}
}

func TestEnsureAuthenticatedIsIdempotent(t *testing.T) {
	flow := &fakeFlow{token: "tok"}
	m := NewMachine("test-model", flow)

	if err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("first EnsureAuthenticated failed: %v", err)
	}
	if err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("second EnsureAuthenticated failed: %v", err)
	}

	// The second call must be a no-op: no second login exchange.
	if flow.attempts != 1 {
		t.Errorf("login attempts = %d, want 1", flow.attempts)
	}
}

func TestEnsureAuthenticatedFailure(t *testing.T) {
	wantErr := &scraper.AuthError{Model: "test-model", Reason: scraper.ReasonWrongPassword}
	flow := &fakeFlow{err: wantErr}
	m := NewMachine("test-model", flow)

	err := m.EnsureAuthenticated(context.Background())
	if err == nil {
		t.Fatal("EnsureAuthenticated succeeded, want error")
	}

	var authErr *scraper.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T, want *scraper.AuthError", err)
	}
	if authErr.Reason != scraper.ReasonWrongPassword {
		t.Errorf("Reason = %s, want %s", authErr.Reason, scraper.ReasonWrongPassword)
	}

	state := m.State()
	if state.Status != StatusFailed {
		t.Errorf("Status = %s, want %s", state.Status, StatusFailed)
	}
	if state.Token != "" {
		t.Errorf("Token = %q, want empty after failed login", state.Token)
	}
}

func TestEnsureAuthenticatedWrapsUnclassifiedErrors(t *testing.T) {
	flow := &fakeFlow{err: errors.New("connection refused")}
	m := NewMachine("test-model", flow)

	err := m.EnsureAuthenticated(context.Background())

	var authErr *scraper.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T, want *scraper.AuthError", err)
	}
	if authErr.Reason != scraper.ReasonTransport {
		t.Errorf("Reason = %s, want %s", authErr.Reason, scraper.ReasonTransport)
	}
	if authErr.Model != "test-model" {
		t.Errorf("Model = %s, want test-model", authErr.Model)
	}
}

func TestEnsureAuthenticatedRejectsEmptyToken(t *testing.T) {
	flow := &fakeFlow{token: ""}
	m := NewMachine("test-model", flow)

	err := m.EnsureAuthenticated(context.Background())

	var authErr *scraper.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T, want *scraper.AuthError", err)
	}
	if authErr.Reason != scraper.ReasonMissingToken {
		t.Errorf("Reason = %s, want %s", authErr.Reason, scraper.ReasonMissingToken)
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status = %s, want %s", m.Status(), StatusFailed)
	}
}

func TestInvalidate(t *testing.T) {
	flow := &fakeFlow{token: "tok"}
	m := NewMachine("test-model", flow)

	if err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated failed: %v", err)
	}

	m.Invalidate()

	state := m.State()
	if state.Status != StatusUnauthenticated {
		t.Errorf("Status = %s, want %s", state.Status, StatusUnauthenticated)
	}
	if state.Token != "" {
		t.Errorf("Token = %q, want empty after Invalidate", state.Token)
	}

	// A new login attempt after invalidation must hit the flow again.
	if err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated after Invalidate failed: %v", err)
	}
	if flow.attempts != 2 {
		t.Errorf("login attempts = %d, want 2", flow.attempts)
	}
}

func TestFailedStateAllowsNewAttempt(t *testing.T) {
	flow := &fakeFlow{err: errors.New("boom")}
	m := NewMachine("test-model", flow)

	if err := m.EnsureAuthenticated(context.Background()); err == nil {
		t.Fatal("EnsureAuthenticated succeeded, want error")
	}

	// Recover the flow and try again: FAILED -> AUTHENTICATED.
	flow.err = nil
	flow.token = "tok"
	if err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("EnsureAuthenticated after recovery failed: %v", err)
	}
	if m.Status() != StatusAuthenticated {
		t.Errorf("Status = %s, want %s", m.Status(), StatusAuthenticated)
	}
}
