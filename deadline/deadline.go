// Package deadline provides clamped child deadlines and bounded,
// cancellable waits on top of context.
//
// A child created with WithTimeout never outlives its parent: the child
// expiry is the earlier of the parent's deadline and now+d, and cancelling
// the parent cancels the child. Blocking helpers (Sleep) observe the
// context and surface a timeout fault promptly instead of waiting out
// their full duration.
package deadline

import (
	"context"
	"time"

	"github.com/jonwraymond/bulwark/fault"
)

// NoDeadline is returned by Remaining when the context carries no deadline.
const NoDeadline = time.Duration(1<<63 - 1)

// WithTimeout derives a child context whose deadline is the earlier of the
// parent's deadline and now+d. The returned cancel is idempotent and must be
// called on every path, normally via defer. A non-positive d produces an
// already-expired child.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	// context.WithTimeout already clamps to the parent deadline and
	// propagates parent cancellation.
	return context.WithTimeout(parent, d)
}

// Remaining returns the time left before ctx expires, clamped at zero.
// Contexts without a deadline report NoDeadline.
func Remaining(ctx context.Context) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return NoDeadline
	}
	r := time.Until(dl)
	if r < 0 {
		return 0
	}
	return r
}

// Done reports whether ctx is cancelled or expired.
func Done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Err returns nil while ctx is live, or a timeout fault describing why it
// ended. Both expiry and cancellation end a bounded wait the same way from
// the waiter's point of view.
func Err(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fault.WrapKind(fault.KindTimeout, err, "deadline")
	}
	return nil
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// nil after a full sleep and a timeout fault on early wakeup. Used for
// backoff pauses, which must never outlive the caller's deadline.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return Err(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fault.WrapKind(fault.KindTimeout, ctx.Err(), "sleep interrupted")
	}
}
