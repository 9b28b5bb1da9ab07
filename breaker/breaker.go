package breaker

import (
	"sync"
	"time"

	"github.com/jonwraymond/bulwark/fault"
)

// State represents the breaker state.
type State int

const (
	// StateClosed means calls are dispatched normally.
	StateClosed State = iota
	// StateOpen means calls are rejected without dispatch.
	StateOpen
	// StateHalfOpen means a limited number of probe calls may test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow when the breaker rejects a call.
var ErrOpen = fault.New(fault.KindCircuitOpen, "breaker: circuit open")

// Transition reasons reported to OnStateChange.
const (
	ReasonThreshold    = "failure threshold reached"
	ReasonCooldown     = "cooldown elapsed"
	ReasonProbeSuccess = "probe succeeded"
	ReasonProbeFailure = "probe failed"
	ReasonReset        = "manual reset"
)

// Config configures a breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker. Default: 5
	FailureThreshold uint

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30 seconds
	Cooldown time.Duration

	// HalfOpenMaxProbes is the max concurrent probe calls in half-open
	// state. Default: 1
	HalfOpenMaxProbes uint

	// OnStateChange is called, under the breaker lock, on every transition.
	OnStateChange func(from, to State, reason string)
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.HalfOpenMaxProbes == 0 {
		c.HalfOpenMaxProbes = 1
	}
}

// Breaker is the state machine for one endpoint. Allow and the Record
// methods are serialized under an internal mutex, so concurrent callers
// observe transitions consistently.
type Breaker struct {
	config Config

	mu             sync.Mutex
	state          State
	failures       uint
	openedAt       time.Time
	probesInFlight uint
}

// New creates a breaker in the closed state.
func New(config Config) *Breaker {
	config.applyDefaults()
	return &Breaker{config: config, state: StateClosed}
}

// Allow reports whether a new call may be dispatched. In the open state it
// returns ErrOpen until the cooldown elapses. In the half-open state it
// consumes a probe slot, or returns ErrOpen without consuming one when all
// slots are taken. A nil return must be followed by exactly one
// RecordSuccess or RecordFailure for the dispatched call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probesInFlight >= b.config.HalfOpenMaxProbes {
			return ErrOpen
		}
		b.probesInFlight++
	}
	return nil
}

// RecordSuccess records a successful call. In the closed state it resets
// the consecutive failure count; in the half-open state it resolves the
// probe and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		b.failures = 0
		b.setStateLocked(StateClosed, ReasonProbeSuccess)
	}
}

// RecordFailure records a failed call. In the closed state it increments
// the consecutive failure count, tripping to open at the threshold; in the
// half-open state the failed probe reopens the circuit and restarts the
// cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = time.Now()
			b.setStateLocked(StateOpen, ReasonThreshold)
		}
	case StateHalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		b.openedAt = time.Now()
		b.setStateLocked(StateOpen, ReasonProbeFailure)
	}
}

// State returns the current state, applying the lazy open-to-half-open
// transition when the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

// Reset forces the breaker back to closed with zero failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probesInFlight = 0
	if b.state != StateClosed {
		b.setStateLocked(StateClosed, ReasonReset)
	}
}

// Metrics contains breaker statistics.
type Metrics struct {
	State          State
	Failures       uint
	OpenedAt       time.Time
	ProbesInFlight uint
}

// Metrics returns current breaker statistics.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Metrics{
		State:          b.currentStateLocked(),
		Failures:       b.failures,
		OpenedAt:       b.openedAt,
		ProbesInFlight: b.probesInFlight,
	}
}

// currentStateLocked applies the time-based open-to-half-open transition.
func (b *Breaker) currentStateLocked() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.config.Cooldown {
		b.probesInFlight = 0
		b.setStateLocked(StateHalfOpen, ReasonCooldown)
	}
	return b.state
}

func (b *Breaker) setStateLocked(state State, reason string) {
	from := b.state
	if from == state {
		return
	}
	b.state = state
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, state, reason)
	}
}
