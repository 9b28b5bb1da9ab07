package exec

import (
	"context"
	"time"

	"github.com/jonwraymond/bulwark/breaker"
	"github.com/jonwraymond/bulwark/fault"
)

// AttemptEvent describes one attempt of one call.
type AttemptEvent struct {
	Key      string
	Attempt  uint
	Duration time.Duration
	// Err is nil when the attempt succeeded.
	Err error
	// Kind classifies Err; KindUnknown on success.
	Kind fault.Kind
}

// Success reports whether the attempt succeeded.
func (ev AttemptEvent) Success() bool {
	return ev.Err == nil
}

// TransitionEvent describes one breaker state change.
type TransitionEvent struct {
	Key    string
	From   breaker.State
	To     breaker.State
	Reason string
}

// EventSink receives one event per attempt and one per breaker transition.
// Implementations must be safe for concurrent use and must not block;
// Transition may be invoked while breaker internals are locked.
type EventSink interface {
	Attempt(ctx context.Context, ev AttemptEvent)
	Transition(ctx context.Context, ev TransitionEvent)
}

type noopSink struct{}

func (noopSink) Attempt(context.Context, AttemptEvent)       {}
func (noopSink) Transition(context.Context, TransitionEvent) {}
