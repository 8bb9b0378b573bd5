// Package adapter carries the machinery every device adapter variant
// shares: the capability gate, the session snapshot plumbing and the
// authenticate-request-retry sequence that wraps each data operation.
package adapter

import (
	"context"
	"log/slog"

	"github.com/gatescrape/gatescrape/scraper"
	"github.com/gatescrape/gatescrape/session"
)

// Base is embedded by each device adapter variant.
type Base struct {
	// ModelName identifies the router model
	ModelName string

	// Caps is the model's static capability declaration
	Caps scraper.CapabilitySet

	// Machine is the authentication state machine for this adapter's
	// single logical session
	Machine *session.Machine
}

// Model returns the router model identifier.
func (b *Base) Model() string {
	return b.ModelName
}

// Capabilities returns the model's capability declaration.
func (b *Base) Capabilities() scraper.CapabilitySet {
	return b.Caps
}

// Require gates an operation on the capability declaration. It fails with a
// *scraper.UnsupportedOperationError before any network activity when the
// model does not declare the operation.
func (b *Base) Require(op scraper.Operation) error {
	if !b.Caps.Supports(op) {
		return &scraper.UnsupportedOperationError{Model: b.ModelName, Op: op}
	}
	return nil
}

// ExportSession serializes the current session state. The snapshot never
// contains credentials or transport context.
func (b *Base) ExportSession() (string, error) {
	return b.Machine.Snapshot()
}

// RestoreSession restores session state from a snapshot. The restored token
// is trusted optimistically; the next data request proves its validity.
func (b *Base) RestoreSession(snapshot string) error {
	return b.Machine.RestoreSnapshot(snapshot)
}

// Fetch runs one data retrieval under the session contract: ensure the
// session is authenticated, send the request, and when the router answers
// with a login demand (server-side session expiry), invalidate the session
// and retry the whole authenticate-and-request sequence exactly once.
//
// send performs the authenticated request; denied reports whether the
// response is the router's "must log in" answer rather than data. A second
// denial is surfaced as a terminal *scraper.AuthError; retrying further
// against a router that keeps rejecting fresh logins would loop forever.
func Fetch[T any](ctx context.Context, b *Base, send func(context.Context) (T, error), denied func(T) bool) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if err := b.Machine.EnsureAuthenticated(ctx); err != nil {
			return zero, err
		}

		resp, err := send(ctx)
		if err != nil {
			return zero, err
		}
		if !denied(resp) {
			return resp, nil
		}

		// The router no longer honours our session.
		b.Machine.Invalidate()

		if attempt >= 1 {
			slog.Debug("session rejected after relogin", "model", b.ModelName)
			return zero, &scraper.AuthError{Model: b.ModelName, Reason: scraper.ReasonSessionRejected}
		}
		slog.Debug("session rejected, retrying once after relogin", "model", b.ModelName)
	}
}
