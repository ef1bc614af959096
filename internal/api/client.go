// Package api is the single gateway for outbound requests to the
// business API. Every call gets the stored bearer token attached, and a
// 401 triggers one refresh-and-retry before the error reaches the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	bizerrors "github.com/alexjbarnes/bizdesk/internal/errors"
	"github.com/alexjbarnes/bizdesk/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// DefaultTimeout is the transport timeout used when none is configured.
	DefaultTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024

	// HeaderRequestID correlates a request with its retry in logs.
	HeaderRequestID = "X-Request-ID"

	headerAuthorization = "Authorization"
)

// Token slot names, matching the durable store.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// TokenStore is the durable key/value holder for the two token slots.
type TokenStore interface {
	Get(name string) (string, bool)
	Set(name, value string) error
	Clear(name string) error
}

// Navigator sends the user to the login entry point.
type Navigator interface {
	ForceLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// ForceLogin calls f.
func (f NavigatorFunc) ForceLogin() { f() }

// Request describes one logical API call. Path is relative to the API
// base, e.g. "/auth/users/me".
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// ID is assigned on first dispatch and kept across the retry.
	ID string
}

// Attempt threads the retry flag through the middleware chain. A request
// is refreshed and retried at most once.
type Attempt struct {
	Request   *Request
	Attempted bool
}

// Response is a successful (2xx) reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{Status: r.Status, Message: fmt.Sprintf("decoding response: %v", err), Err: bizerrors.ErrAPIResponse}
	}

	return nil
}

// Doer dispatches one attempt.
type Doer func(ctx context.Context, a *Attempt) (*Response, error)

// Middleware decorates a Doer.
type Middleware func(Doer) Doer

// Chain composes middlewares around d. The first middleware is outermost.
func Chain(d Doer, mws ...Middleware) Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}

	return d
}

// ClientConfig holds the dependencies of a Client.
type ClientConfig struct {
	// BaseURL includes the version segment, e.g. http://host/api/v1.
	BaseURL string
	// HTTPClient overrides the transport. When nil a client with Timeout
	// and a same-host redirect policy is created.
	HTTPClient *http.Client
	Timeout    time.Duration
	Tokens     TokenStore
	Navigator  Navigator
	// CoalesceRefresh shares one refresh call between concurrent 401s
	// that carry the same refresh token.
	CoalesceRefresh bool
}

// Client talks to the business API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenStore
	nav        Navigator
	logger     *slog.Logger

	refreshGroup *singleflight.Group

	// redirected latches after a forced login redirect so a burst of
	// failing requests navigates once. It re-arms on any 2xx that passes
	// through the chain, public endpoints included, and on every
	// successful refresh.
	redirected atomic.Bool

	do Doer
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the bearer token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}

		httpClient = &http.Client{
			Timeout:       timeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	if logger == nil {
		logger = logging.Discard()
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		tokens:     cfg.Tokens,
		nav:        cfg.Navigator,
		logger:     logger.With(slog.String("component", "api")),
	}

	if cfg.CoalesceRefresh {
		c.refreshGroup = &singleflight.Group{}
	}

	c.do = Chain(c.transport, c.refreshOn401, c.bearer)

	return c
}

// Do sends req through the full middleware chain.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	return c.do(ctx, &Attempt{Request: req})
}

// bearer attaches the stored access token. It re-reads the store on
// every dispatch, so a retry picks up a freshly refreshed token.
func (c *Client) bearer(next Doer) Doer {
	return func(ctx context.Context, a *Attempt) (*Response, error) {
		if token, ok := c.tokens.Get(AccessTokenKey); ok {
			a.Request.Header.Set(headerAuthorization, "Bearer "+token)
		}

		return next(ctx, a)
	}
}

// refreshOn401 intercepts the first 401 of a request and hands it to
// RefreshAndRetry. The retry goes back through c.do.
func (c *Client) refreshOn401(next Doer) Doer {
	return func(ctx context.Context, a *Attempt) (*Response, error) {
		resp, err := next(ctx, a)
		if err == nil {
			c.redirected.Store(false)
			return resp, nil
		}

		if !IsUnauthorized(err) || a.Attempted {
			return nil, err
		}

		c.logger.Debug("received 401, attempting token refresh",
			slog.String("request_id", a.Request.ID),
			slog.String("path", a.Request.Path),
		)

		return RefreshAndRetry(ctx, a, err, RefreshDeps{
			Tokens:    c.tokens,
			Refresh:   c.refresh,
			Retry:     c.do,
			OnFailure: c.forceLogin,
		})
	}
}

// forceLogin navigates to login at most once per failure burst.
func (c *Client) forceLogin() {
	if c.nav == nil {
		return
	}

	if c.redirected.CompareAndSwap(false, true) {
		c.logger.Info("session expired, redirecting to login")
		c.nav.ForceLogin()
	}
}

// transport performs the HTTP exchange. Non-2xx replies and network
// failures come back as *Error.
func (c *Client) transport(ctx context.Context, a *Attempt) (*Response, error) {
	req := a.Request

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Message: fmt.Sprintf("marshalling request body: %v", err), Err: bizerrors.ErrAPIRequest}
		}

		body = bytes.NewReader(payload)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("creating request: %v", err), Err: bizerrors.ErrAPIRequest}
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if req.ID != "" {
		httpReq.Header.Set(HeaderRequestID, req.ID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{
			Message: fmt.Sprintf("sending request to %s: %v", req.Path, err),
			Err:     fmt.Errorf("%w: %w", bizerrors.ErrAPIRequest, err),
		}
	}
	defer resp.Body.Close()

	// Cap response reads at 1MB. API responses are small JSON payloads.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("reading response from %s: %v", req.Path, err),
			Err:     bizerrors.ErrAPIResponse,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("request failed with status code %d", resp.StatusCode),
			Err:     bizerrors.ErrAPIResponse,
		}

		if len(bytes.TrimSpace(respBody)) > 0 {
			apiErr.Data = json.RawMessage(respBody)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Err = bizerrors.ErrNotAuthenticated
		}

		return nil, apiErr
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   respBody,
	}, nil
}

// get sends a GET and decodes the reply into result when non-nil.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	return resp.Decode(result)
}

// post sends a JSON POST and decodes the reply into result when non-nil.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	return resp.Decode(result)
}
