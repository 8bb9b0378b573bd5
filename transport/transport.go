// Package transport abstracts how a request physically reaches a router's
// management interface. Two families exist: direct HTTP request/response
// (Client, implemented here by HTTPClient) and driving a full browser for
// JavaScript-only UIs (Browser, implemented by an external WebDriver
// binding; tests use fakes).
//
// The transport layer owns the process-local session context: cookies for
// HTTP, the automation handle for browsers. That context is never part of a
// session snapshot and is re-acquired after a restore.
package transport

import (
	"context"
	"fmt"
	"net/url"
)

// Request describes one request against the router management interface.
type Request struct {
	// Method is the HTTP method (http.MethodGet or http.MethodPost)
	Method string

	// Path is the service path relative to the router root, e.g.
	// "status.cgi" or "authenticate"
	Path string

	// Params are sent as the query string for GET requests and as a
	// form-encoded body for POST requests
	Params url.Values
}

// Response is the payload a request came back with. Any HTTP-level success
// status yields a Response; transport and protocol failures yield a
// *TransportError instead.
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Body is the full response body
	Body []byte
}

// Client sends requests to a router over a direct protocol. A Client value
// holds the transport-side session context (cookies); Reset discards it for
// a clean start.
type Client interface {
	// Do sends one request. It does not retry: transient-failure policy
	// belongs to the layers above.
	Do(ctx context.Context, req Request) (*Response, error)

	// Reset discards the transport session context (cookies), so the next
	// request starts from scratch.
	Reset() error

	// Close releases connection resources. Safe to call more than once.
	Close() error
}

// Browser drives a real browser against the router UI, for models whose
// management interface only works with JavaScript enabled. Implementations
// wrap a browser automation handle; the handle is exclusive and must be
// released with Close on every exit path.
type Browser interface {
	// Navigate loads the given URL in the browser.
	Navigate(ctx context.Context, url string) error

	// ElementText returns the visible text of the first element matching
	// the CSS selector. It fails when no such element exists yet; callers
	// poll for elements that render late.
	ElementText(ctx context.Context, selector string) (string, error)

	// ElementAttribute returns the value of an attribute of the first
	// element matching the CSS selector.
	ElementAttribute(ctx context.Context, selector, attribute string) (string, error)

	// FillField clears the first element matching the CSS selector, types
	// the value into it and submits it (as if the user pressed Enter).
	FillField(ctx context.Context, selector, value string) error

	// ExecuteScript runs a JavaScript snippet in the page.
	ExecuteScript(ctx context.Context, script string) error

	// Close releases the browser handle. Safe to call more than once.
	Close() error
}

// TransportError reports a failure to complete a request at the transport
// layer (network failure, HTTP error status, browser automation failure).
// The core treats it as a request failure; it is not specially retried.
type TransportError struct {
	// Op names the failed operation (e.g. "GET", "navigate")
	Op string

	// URL is the target of the failed operation
	URL string

	// Err is the underlying cause
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
