// Package fault provides classified, causally-chained error records.
//
// A Record carries a Kind (timeout, circuit-open, validation, upstream,
// resource), a message, and an optional cause. Wrapping prepends context
// while keeping the prior record reachable, so the innermost failure is
// never lost:
//
//	err := fault.New(fault.KindUpstream, "connection refused")
//	err = fault.Wrap(err, "fetch profile")
//	err = fault.Wrapf(err, "call %q", "user-svc")
//
//	fault.RootCause(err)            // the original record
//	fault.Is(err, fault.KindUpstream) // true at any chain depth
//
// Records are immutable once created and interoperate with the standard
// errors package: Unwrap walks the cause chain, so errors.Is and errors.As
// work across fault and non-fault errors alike.
//
// Secondary failures that must not mask a primary error (a release failing
// during cleanup, for example) are attached with WithSuppressed and rendered
// alongside the primary chain.
package fault
