package exec

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/bulwark/breaker"
	"github.com/jonwraymond/bulwark/fault"
	"github.com/jonwraymond/bulwark/scope"
)

func newTestExecutor(opts ...Option) *Executor {
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 5, Cooldown: time.Minute})
	return New(reg, opts...)
}

func TestExecute_Success(t *testing.T) {
	e := newTestExecutor()

	calls := 0
	err := e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: time.Second,
		MaxAttempts:       3,
		BackoffBase:       10 * time.Millisecond,
		BackoffMultiplier: 2,
	}))

	calls := 0
	start := time.Now()
	err := e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Backoff of 10ms then 20ms must have elapsed.
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 30ms of backoff", elapsed)
	}

	m := e.Registry().Get("svc-a").Metrics()
	if m.State != breaker.StateClosed || m.Failures != 0 {
		t.Errorf("breaker = %+v, want closed with 0 failures", m)
	}
}

func TestExecute_FailFastWhenOpen(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 5, Cooldown: time.Minute})
	e := New(reg, WithPolicy(Policy{
		TimeoutPerAttempt: time.Second,
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	for i := 0; i < 5; i++ {
		err := e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
			return errors.New("down")
		})
		if err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}

	invoked := false
	err := e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		invoked = true
		return nil
	})

	if invoked {
		t.Error("work invoked while circuit open")
	}
	if !fault.Is(err, fault.KindCircuitOpen) {
		t.Errorf("kind = %v, want circuit-open", fault.KindOf(err))
	}
	if !strings.Contains(err.Error(), `"svc-a"`) {
		t.Errorf("error %q should name the key", err.Error())
	}
}

func TestExecute_TimeoutBoundsCooperativeWork(t *testing.T) {
	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: 50 * time.Millisecond,
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	start := time.Now()
	err := e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		// Blocks 200ms total, checking for cancellation every 10ms.
		for i := 0; i < 20; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
		return nil
	})
	elapsed := time.Since(start)

	if !fault.Is(err, fault.KindTimeout) {
		t.Errorf("kind = %v, want timeout", fault.KindOf(err))
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("elapsed = %v, want ~50-60ms", elapsed)
	}
}

func TestExecute_ParentDeadlineCapsRetries(t *testing.T) {
	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: 10 * time.Millisecond,
		MaxAttempts:       100,
		BackoffBase:       5 * time.Millisecond,
		BackoffMultiplier: 1,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Execute(ctx, "svc-a", func(ctx context.Context, res *scope.Scope) error {
		return errors.New("down")
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Execute() should fail")
	}
	// Must not run anywhere near 100 attempts; one wait granularity of
	// slack past the parent deadline is the allowance.
	if elapsed > 200*time.Millisecond {
		t.Errorf("elapsed = %v, parent deadline not honored", elapsed)
	}
}

func TestExecute_NonRetriableStopsImmediately(t *testing.T) {
	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: time.Second,
		MaxAttempts:       5,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	calls := 0
	err := e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		calls++
		return fault.New(fault.KindValidation, "bad request")
	})

	if calls != 1 {
		t.Errorf("calls = %d, validation errors must not retry", calls)
	}
	if !fault.Is(err, fault.KindValidation) {
		t.Errorf("kind = %v, want validation", fault.KindOf(err))
	}
}

func TestExecute_ReleasesResourcesOnEveryPath(t *testing.T) {
	var acquires, releases atomic.Int64
	opener := func(ctx context.Context) (func() error, error) {
		acquires.Add(1)
		return func() error {
			releases.Add(1)
			return nil
		}, nil
	}

	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: 20 * time.Millisecond,
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	// Failing work.
	_ = e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		if _, err := res.Acquire(ctx, "conn", opener); err != nil {
			return err
		}
		return errors.New("down")
	})

	// Timing-out work that still observes cancellation.
	_ = e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		if _, err := res.Acquire(ctx, "conn", opener); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})

	// Panicking work.
	_ = e.Execute(context.Background(), "svc-b", func(ctx context.Context, res *scope.Scope) error {
		_, _ = res.Acquire(ctx, "conn", opener)
		panic("boom")
	})

	// Abandoned attempts close their scopes when the work returns; give
	// them a moment.
	deadlineAt := time.Now().Add(time.Second)
	for releases.Load() != acquires.Load() && time.Now().Before(deadlineAt) {
		time.Sleep(5 * time.Millisecond)
	}
	if releases.Load() != acquires.Load() {
		t.Errorf("releases = %d, acquires = %d", releases.Load(), acquires.Load())
	}
	if acquires.Load() == 0 {
		t.Error("no acquisitions recorded, test is vacuous")
	}
}

func TestExecute_PanicBecomesError(t *testing.T) {
	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: time.Second,
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	err := e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		panic("nil deref")
	})

	if err == nil {
		t.Fatal("panic should surface as an error")
	}
	if !fault.Is(err, fault.KindUpstream) {
		t.Errorf("kind = %v, want upstream", fault.KindOf(err))
	}
	if !strings.Contains(err.Error(), "nil deref") {
		t.Errorf("error %q should carry the panic value", err.Error())
	}

	// The failed attempt must have been recorded.
	if m := e.Registry().Get("svc-a").Metrics(); m.Failures != 1 {
		t.Errorf("Failures = %d, want 1", m.Failures)
	}
}

func TestExecute_FinalErrorNamesKeyAndAttempts(t *testing.T) {
	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: time.Second,
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	root := errors.New("connection refused")
	err := e.Execute(context.Background(), "billing", func(ctx context.Context, res *scope.Scope) error {
		return root
	})

	if err == nil {
		t.Fatal("Execute() should fail")
	}
	msg := err.Error()
	if !strings.Contains(msg, `"billing"`) || !strings.Contains(msg, "2 attempt(s)") {
		t.Errorf("error %q should name key and attempts", msg)
	}
	if fault.RootCause(err) != root {
		t.Errorf("RootCause() = %v, want the original error", fault.RootCause(err))
	}
}

func TestExecute_PerKeyPolicy(t *testing.T) {
	e := newTestExecutor(
		WithPolicy(Policy{
			TimeoutPerAttempt: time.Second,
			MaxAttempts:       1,
			BackoffBase:       time.Millisecond,
			BackoffMultiplier: 1,
		}),
		WithPolicyFor("flaky", Policy{
			TimeoutPerAttempt: time.Second,
			MaxAttempts:       4,
			BackoffBase:       time.Millisecond,
			BackoffMultiplier: 1,
		}),
	)

	fail := func(calls *int) Operation {
		return func(ctx context.Context, res *scope.Scope) error {
			*calls++
			return errors.New("down")
		}
	}

	var defaultCalls, flakyCalls int
	_ = e.Execute(context.Background(), "normal", fail(&defaultCalls))
	_ = e.Execute(context.Background(), "flaky", fail(&flakyCalls))

	if defaultCalls != 1 {
		t.Errorf("default key calls = %d, want 1", defaultCalls)
	}
	if flakyCalls != 4 {
		t.Errorf("flaky key calls = %d, want 4", flakyCalls)
	}
}

func TestExecute_EventsEmitted(t *testing.T) {
	sink := &recordingSink{}
	reg := breaker.NewRegistry(breaker.Config{FailureThreshold: 2, Cooldown: time.Minute})
	e := New(reg,
		WithPolicy(Policy{
			TimeoutPerAttempt: time.Second,
			MaxAttempts:       2,
			BackoffBase:       time.Millisecond,
			BackoffMultiplier: 1,
		}),
		WithEventSink(sink),
	)

	_ = e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
		return errors.New("down")
	})

	attempts := sink.attempts()
	if len(attempts) != 2 {
		t.Fatalf("attempt events = %d, want 2", len(attempts))
	}
	for i, ev := range attempts {
		if ev.Key != "svc-a" || ev.Attempt != uint(i+1) {
			t.Errorf("event %d = %+v", i, ev)
		}
		if ev.Success() {
			t.Errorf("event %d should be a failure", i)
		}
		if ev.Kind != fault.KindUpstream {
			t.Errorf("event %d kind = %v, want upstream", i, ev.Kind)
		}
	}

	// Threshold of 2 reached: one closed-to-open transition.
	transitions := sink.transitions()
	if len(transitions) != 1 {
		t.Fatalf("transition events = %d, want 1", len(transitions))
	}
	tr := transitions[0]
	if tr.Key != "svc-a" || tr.From != breaker.StateClosed || tr.To != breaker.StateOpen {
		t.Errorf("transition = %+v", tr)
	}
}

func TestExecute_PoolBoundsConcurrency(t *testing.T) {
	pool := scope.NewPool(1)
	e := newTestExecutor(
		WithPolicy(Policy{
			TimeoutPerAttempt: time.Second,
			MaxAttempts:       1,
			BackoffBase:       time.Millisecond,
			BackoffMultiplier: 1,
		}),
		WithPool(pool),
	)

	var inFlight, maxInFlight atomic.Int64
	block := make(chan struct{})
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			results <- e.Execute(context.Background(), "svc-a", func(ctx context.Context, res *scope.Scope) error {
				n := inFlight.Add(1)
				for {
					old := maxInFlight.Load()
					if n <= old || maxInFlight.CompareAndSwap(old, n) {
						break
					}
				}
				<-block
				inFlight.Add(-1)
				return nil
			})
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(block)
	for i := 0; i < 3; i++ {
		if err := <-results; err != nil {
			t.Errorf("Execute() error = %v", err)
		}
	}
	if maxInFlight.Load() != 1 {
		t.Errorf("max in flight = %d, want 1", maxInFlight.Load())
	}
}

func TestDo_ReturnsResult(t *testing.T) {
	e := newTestExecutor()

	got, err := Do(context.Background(), e, "svc-a", func(ctx context.Context, res *scope.Scope) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}
}

func TestDo_ZeroValueOnError(t *testing.T) {
	e := newTestExecutor(WithPolicy(Policy{
		TimeoutPerAttempt: time.Second,
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
	}))

	got, err := Do(context.Background(), e, "svc-a", func(ctx context.Context, res *scope.Scope) (string, error) {
		return "partial", errors.New("down")
	})
	if err == nil {
		t.Fatal("Do() should fail")
	}
	if got != "" {
		t.Errorf("Do() = %q, want zero value", got)
	}
}
