package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/jonwraymond/bulwark/exec"
	"github.com/jonwraymond/bulwark/fault"
	"github.com/jonwraymond/bulwark/scope"
)

// KeyFunc derives the breaker key for a request. The default keys by
// request host, so every endpoint behind one host shares a breaker.
type KeyFunc func(*http.Request) string

// RoundTripper runs requests through a resilient executor.
type RoundTripper struct {
	base   http.RoundTripper
	exec   *exec.Executor
	keyFor KeyFunc
	tokens TokenSource
}

// Option configures a RoundTripper.
type Option func(*RoundTripper)

// WithKeyFunc overrides how requests map to breaker keys.
func WithKeyFunc(f KeyFunc) Option {
	return func(rt *RoundTripper) {
		rt.keyFor = f
	}
}

// WithTokenSource stamps an Authorization bearer token onto every attempt.
func WithTokenSource(ts TokenSource) Option {
	return func(rt *RoundTripper) {
		rt.tokens = ts
	}
}

// NewRoundTripper wraps base with executor-managed retries and breakers.
// A nil base uses http.DefaultTransport.
func NewRoundTripper(base http.RoundTripper, e *exec.Executor, opts ...Option) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := &RoundTripper{
		base: base,
		exec: e,
		keyFor: func(req *http.Request) string {
			return req.URL.Host
		},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// RoundTrip implements http.RoundTripper. Each attempt gets a fresh body
// via GetBody, a fresh Authorization header, and the attempt's deadline.
// A request with a body but no GetBody fails up front, since a retry
// could not resend it.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}

	key := rt.keyFor(req)
	return exec.Do(req.Context(), rt.exec, key,
		func(ctx context.Context, _ *scope.Scope) (*http.Response, error) {
			return rt.attempt(ctx, req)
		})
}

func (rt *RoundTripper) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fault.Wrap(err, "transport: rewind request body")
		}
		attempt.Body = body
	}

	if rt.tokens != nil {
		token, err := rt.tokens.Token(ctx)
		if err != nil {
			return nil, fault.Wrap(err, "transport: mint token")
		}
		attempt.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := rt.base.RoundTrip(attempt)
	if err != nil {
		return nil, fault.WrapKind(fault.KindUpstream, err, "transport: round trip")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		drain(resp)
		return nil, fault.Newf(fault.KindUpstream, "transport: %s %s: status %d",
			attempt.Method, attempt.URL.Host, resp.StatusCode)
	}
	return resp, nil
}

// drain discards and closes a response body so the underlying connection
// can be reused.
func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

// Client returns an http.Client using this round tripper.
func (rt *RoundTripper) Client() *http.Client {
	return &http.Client{Transport: rt}
}

var _ http.RoundTripper = (*RoundTripper)(nil)
