// Package exec orchestrates resilient remote calls.
//
// An Executor wraps a unit of work with a circuit breaker gate, a
// per-attempt deadline, a resource scope whose handles are released on
// every exit path, retry with cancellable backoff, and classified error
// wrapping. The breaker registry is injected at construction, so all
// executors bound to the same registry share one view of endpoint health.
//
//	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 5})
//	e := exec.New(reg, exec.WithPolicy(exec.Policy{
//	    TimeoutPerAttempt: 2 * time.Second,
//	    MaxAttempts:       3,
//	    BackoffBase:       100 * time.Millisecond,
//	    BackoffMultiplier: 2,
//	    Jitter:            true,
//	}))
//
//	err := e.Execute(ctx, "user-svc", func(ctx context.Context, res *scope.Scope) error {
//	    return callUserService(ctx)
//	})
//
// Cancellation is cooperative: the executor bounds its own waits (backoff,
// attempt deadlines) and abandons attempts whose deadline elapses, but it
// never preempts the work function. Work must observe ctx and return
// promptly once the deadline passes; an abandoned attempt still closes its
// scope when the work eventually returns.
package exec
