// Package transport wires outbound HTTP through the resilient executor.
//
// RoundTripper wraps any http.RoundTripper so that every request gets the
// executor's retry, deadline, and circuit-breaker treatment, keyed by the
// destination host. Responses with a 5xx status are treated as upstream
// failures so the breaker counts them; 4xx responses are returned to the
// caller untouched.
//
// A TokenSource can be attached to stamp an Authorization header on each
// attempt. SignedToken mints short-lived HS256 tokens and re-mints them
// before they expire, so retried attempts never carry a stale credential.
package transport
