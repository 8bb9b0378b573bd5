package scraper

import (
	"fmt"
)

// AuthReason classifies why a login attempt failed.
type AuthReason string

const (
	// ReasonWrongUsername means the router rejected the username.
	ReasonWrongUsername AuthReason = "wrong username"

	// ReasonWrongPassword means the router rejected the password
	// (or, for challenge-response logins, the server proof step failed
	// in a way the firmware attributes to bad credentials).
	ReasonWrongPassword AuthReason = "wrong password"

	// ReasonLoginLocked means the router has temporarily locked its login
	// endpoint (too many attempts).
	ReasonLoginLocked AuthReason = "login locked"

	// ReasonMissingToken means a token the login flow depends on (form
	// token, CSRF token) could not be extracted from the router response.
	ReasonMissingToken AuthReason = "missing token"

	// ReasonMalformedExchange means the router sent a malformed or
	// incomplete message during the login exchange.
	ReasonMalformedExchange AuthReason = "malformed exchange"

	// ReasonProofMismatch means the server's proof value in a
	// challenge-response login did not verify. This is treated as an
	// authentication failure even if the server indicated success.
	ReasonProofMismatch AuthReason = "server proof mismatch"

	// ReasonSessionRejected means the router kept rejecting an
	// authenticated request as unauthenticated after a fresh login.
	ReasonSessionRejected AuthReason = "session rejected"

	// ReasonTransport means the login failed at the transport layer.
	ReasonTransport AuthReason = "transport failure"
)

// AuthError reports a failed login attempt.
type AuthError struct {
	// Model is the router model the login was attempted against
	Model string

	// Reason classifies the failure
	Reason AuthReason

	// Err is the underlying cause, if any
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: authentication failed (%s): %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: authentication failed (%s)", e.Model, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UnsupportedOperationError reports a call to an operation the device model
// does not declare in its capability set. It is never retried.
type UnsupportedOperationError struct {
	Model string
	Op    Operation
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s: operation %q is not supported by this model", e.Model, e.Op)
}

// ParseError reports a router response whose shape did not match what the
// device parser expects (firmware update, different model, captive page).
// It is never retried: the layout mismatch will not fix itself.
type ParseError struct {
	// Model is the router model whose parser failed
	Model string

	// Op is the operation whose response could not be parsed
	Op Operation

	// Err describes what was wrong with the response
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse %s response: %v", e.Model, e.Op, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SnapshotError reports a session snapshot that could not be decoded
// (malformed encoding, unknown format version, inconsistent fields).
// Session state is left untouched when restore fails.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("invalid session snapshot: %v", e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}
