package exec

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/bulwark/fault"
)

// Policy configures retry and deadline behavior for one endpoint.
type Policy struct {
	// TimeoutPerAttempt bounds each attempt, clamped to the caller's
	// deadline. Default: 30 seconds
	TimeoutPerAttempt time.Duration

	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts uint

	// BackoffBase is the delay before the first retry.
	// Default: 100ms
	BackoffBase time.Duration

	// BackoffMultiplier scales the delay for each further retry.
	// Default: 2.0
	BackoffMultiplier float64

	// Jitter adds up to 25% randomness to each delay to prevent
	// thundering herd.
	Jitter bool

	// RetryIf determines whether an error is worth another attempt.
	// Default: fault.Retriable (timeouts and upstream failures retry;
	// validation, circuit-open, and caller cancellation do not).
	RetryIf func(err error) bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		TimeoutPerAttempt: 30 * time.Second,
		MaxAttempts:       3,
		BackoffBase:       100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryIf:           fault.Retriable,
	}
}

func (p Policy) withDefaults() Policy {
	if p.TimeoutPerAttempt <= 0 {
		p.TimeoutPerAttempt = 30 * time.Second
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.BackoffBase < 0 {
		p.BackoffBase = 100 * time.Millisecond
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 2.0
	}
	if p.RetryIf == nil {
		p.RetryIf = fault.Retriable
	}
	return p
}

// delay computes the backoff pause after the given attempt number.
func (p Policy) delay(attempt uint) time.Duration {
	d := time.Duration(float64(p.BackoffBase) * math.Pow(p.BackoffMultiplier, float64(attempt-1)))
	if j := int64(d / 4); p.Jitter && j > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(j))
	}
	return d
}
