package exec

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/bulwark/breaker"
	"github.com/jonwraymond/bulwark/deadline"
	"github.com/jonwraymond/bulwark/fault"
	"github.com/jonwraymond/bulwark/scope"
)

// Operation is a unit of work executed under a deadline. Resources needed
// for the attempt are acquired through res and released when the attempt
// ends, on every exit path.
type Operation func(ctx context.Context, res *scope.Scope) error

// Executor runs operations through a breaker gate with per-attempt
// deadlines, scoped resources, and retry with backoff. Safe for concurrent
// use.
type Executor struct {
	registry *breaker.Registry
	policy   Policy
	perKey   map[string]Policy
	sink     EventSink
	pool     *scope.Pool
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy sets the default policy for all keys.
func WithPolicy(p Policy) Option {
	return func(e *Executor) {
		e.policy = p.withDefaults()
	}
}

// WithPolicyFor overrides the policy for a single key.
func WithPolicyFor(key string, p Policy) Option {
	return func(e *Executor) {
		e.perKey[key] = p.withDefaults()
	}
}

// WithEventSink sets the sink receiving attempt and transition events.
func WithEventSink(s EventSink) Option {
	return func(e *Executor) {
		e.sink = s
	}
}

// WithPool bounds concurrent attempts across all keys.
func WithPool(p *scope.Pool) Option {
	return func(e *Executor) {
		e.pool = p
	}
}

// New creates an executor bound to the given breaker registry.
func New(registry *breaker.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		policy:   DefaultPolicy(),
		perKey:   make(map[string]Policy),
		sink:     noopSink{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, ok := e.sink.(noopSink); !ok {
		sink := e.sink
		registry.Subscribe(func(key string, from, to breaker.State, reason string) {
			sink.Transition(context.Background(), TransitionEvent{
				Key: key, From: from, To: to, Reason: reason,
			})
		})
	}
	return e
}

// Registry returns the breaker registry this executor is bound to.
func (e *Executor) Registry() *breaker.Registry {
	return e.registry
}

// Execute runs op against the endpoint identified by key.
//
// The breaker is consulted before every attempt; a rejection before the
// first attempt returns immediately without acquiring anything. Attempts
// are strictly sequential, each bounded by the per-attempt timeout clamped
// to the caller's deadline, and each records exactly one outcome on the
// breaker. Failed attempts retry per policy with backoff bounded by the
// caller's remaining time. The returned error names the key and the number
// of attempts made, with the root cause reachable through the chain.
func (e *Executor) Execute(ctx context.Context, key string, op Operation) error {
	pol := e.policyFor(key)
	br := e.registry.Get(key)

	var lastErr error
	var attempts uint

	for attempt := uint(1); attempt <= pol.MaxAttempts; attempt++ {
		if err := br.Allow(); err != nil {
			// Rejected without dispatch; an earlier attempt's error, if
			// any, is kept as suppressed context.
			lastErr = fault.WithSuppressed(err, lastErr)
			break
		}

		start := time.Now()
		err := e.runAttempt(ctx, pol, op)
		dur := time.Since(start)
		attempts = attempt

		if err == nil {
			br.RecordSuccess()
			e.sink.Attempt(ctx, AttemptEvent{Key: key, Attempt: attempt, Duration: dur})
			return nil
		}

		err = classify(err)
		br.RecordFailure()
		e.sink.Attempt(ctx, AttemptEvent{
			Key: key, Attempt: attempt, Duration: dur, Err: err, Kind: fault.KindOf(err),
		})
		lastErr = err

		if !pol.RetryIf(err) || attempt == pol.MaxAttempts {
			break
		}

		pause := pol.delay(attempt)
		if rem := deadline.Remaining(ctx); rem <= pause {
			// No time left for the pause, let alone another attempt.
			break
		}
		if serr := deadline.Sleep(ctx, pause); serr != nil {
			break
		}
	}

	return fault.Wrapf(lastErr, "execute %q: %d attempt(s)", key, attempts)
}

// runAttempt runs op under a child deadline and a fresh scope, racing the
// deadline the way a bounded wait must. When the deadline wins, the attempt
// is abandoned and classified as a timeout; the work goroutine still closes
// its scope when the operation eventually observes ctx and returns.
func (e *Executor) runAttempt(ctx context.Context, pol Policy, op Operation) error {
	actx, cancel := deadline.WithTimeout(ctx, pol.TimeoutPerAttempt)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if e.pool != nil {
			if err := e.pool.Acquire(actx); err != nil {
				done <- err
				return
			}
			defer e.pool.Release()
		}
		done <- scope.Run(actx, func(ctx context.Context, s *scope.Scope) error {
			return op(ctx, s)
		})
	}()

	select {
	case err := <-done:
		return err
	case <-actx.Done():
		return fault.WrapKind(fault.KindTimeout, actx.Err(), "attempt abandoned")
	}
}

// classify gives unclassified errors an upstream kind so retry and breaker
// decisions have something to go on. Context errors classify as timeouts.
func classify(err error) error {
	if fault.KindOf(err) != fault.KindUnknown {
		return err
	}
	return fault.WrapKind(fault.KindUpstream, err, "call failed")
}

func (e *Executor) policyFor(key string) Policy {
	if p, ok := e.perKey[key]; ok {
		return p
	}
	return e.policy
}

// Do runs fn through the executor and returns its result. The zero value
// of T is returned alongside any error.
func Do[T any](ctx context.Context, e *Executor, key string, fn func(ctx context.Context, res *scope.Scope) (T, error)) (T, error) {
	var mu sync.Mutex
	var out T

	err := e.Execute(ctx, key, func(ctx context.Context, res *scope.Scope) error {
		v, err := fn(ctx, res)
		if err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
