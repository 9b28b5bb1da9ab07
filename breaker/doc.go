// Package breaker implements a per-endpoint circuit breaker with a keyed
// registry.
//
// A Breaker is a three-state machine (closed, open, half-open) gating
// dispatch to one logical endpoint. Unlike a wrapper that invokes the
// operation itself, the gate is split into Allow and RecordSuccess or
// RecordFailure so an executor can interleave deadline handling and
// resource scoping between the two.
//
// A Registry holds one breaker per endpoint key, created lazily on first
// use and never evicted. All state is in memory; a restarted process starts
// closed with zero failures.
package breaker
