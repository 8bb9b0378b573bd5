// Package session tracks the authentication lifecycle of one router session.
//
// A Machine drives the session through login attempts: it stays out of the
// way while the session is authenticated (ensuring a data request never
// triggers a redundant login exchange), runs the device's login flow when it
// is not, and records the outcome. The session state it guards can be
// exported to and restored from a password-free snapshot string.
package session

import (
	"time"
)

// Status is the authentication status of a session.
type Status string

const (
	// StatusUnauthenticated means no valid session is established.
	// This is the initial status of every new session.
	StatusUnauthenticated Status = "unauthenticated"

	// StatusAuthenticated means the last login succeeded and the session
	// token is considered valid. Validity is optimistic: the router may
	// have expired the session server-side, which the next request will
	// discover.
	StatusAuthenticated Status = "authenticated"

	// StatusFailed means the last login attempt failed. A new login
	// attempt may still succeed (e.g. after a lockout expires).
	StatusFailed Status = "failed"
)

// valid reports whether s is one of the defined statuses.
func (s Status) valid() bool {
	switch s {
	case StatusUnauthenticated, StatusAuthenticated, StatusFailed:
		return true
	}
	return false
}

// State is the serializable part of a session.
//
// Transport context (cookie jars, open browser handles) is deliberately not
// part of State: it is process-local and must be re-acquired after a restore.
// Credentials are never part of State either.
type State struct {
	// Status is the current authentication status
	Status Status

	// Token is the opaque session token obtained by the last successful
	// login. Invariant: Token is non-empty if and only if Status is
	// StatusAuthenticated.
	Token string

	// IssuedAt is when the token was obtained (zero when there is none)
	IssuedAt time.Time
}
