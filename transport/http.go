package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for HTTPClient. Consumer routers run slow embedded web servers
// and lock their login endpoint under bursts, hence the conservative
// request rate.
const (
	defaultTimeout = 10 * time.Second
	defaultRate    = rate.Limit(4) // requests per second
	defaultBurst   = 4
)

// HTTPClient is the direct-protocol transport: plain HTTP against the
// router host, with a cookie jar for the router's session cookies and a
// rate limiter in front of every request.
type HTTPClient struct {
	host    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a transport for the given router host (name or IP,
// without scheme). Router management interfaces are plain http on the LAN.
func NewHTTPClient(host string) *HTTPClient {
	c := &HTTPClient{
		host:    host,
		baseURL: "http://" + host + "/",
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
	}
	c.client = &http.Client{
		Timeout: defaultTimeout,
		Jar:     newJar(),
	}
	return c
}

// SetTimeout overrides the per-request timeout.
func (c *HTTPClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// SetRateLimit overrides the request throttle.
func (c *HTTPClient) SetRateLimit(r rate.Limit, burst int) {
	c.limiter = rate.NewLimiter(r, burst)
}

// Do implements Client. Any HTTP status outside 2xx is a *TransportError:
// router firmwares signal "not logged in" inside successful responses, not
// via status codes, so a bad status always means transport trouble.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: req.Method, URL: c.baseURL + req.Path, Err: err}
	}

	target := c.baseURL + strings.TrimPrefix(req.Path, "/")

	var httpReq *http.Request
	var err error
	switch req.Method {
	case http.MethodPost:
		body := strings.NewReader(req.Params.Encode())
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, target, body)
		if httpReq != nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		full := target
		if len(req.Params) > 0 {
			full = target + "?" + req.Params.Encode()
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	}
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: target, Err: err}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			Op:  req.Method,
			URL: target,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Reset implements Client: it drops all cookies, so the next request starts
// a fresh router session.
func (c *HTTPClient) Reset() error {
	c.client.Jar = newJar()
	return nil
}

// Close implements Client.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func newJar() http.CookieJar {
	// cookiejar.New only fails for invalid options; with nil options it
	// cannot fail.
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic(fmt.Sprintf("transport: cookiejar.New: %v", err))
	}
	return jar
}

// compile-time interface check
var _ Client = (*HTTPClient)(nil)
