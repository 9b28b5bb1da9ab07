package fault

// Kind classifies a failure for retry and breaker decisions.
type Kind int

const (
	// KindUnknown is an unclassified failure.
	KindUnknown Kind = iota
	// KindTimeout means a deadline elapsed before the operation completed.
	KindTimeout
	// KindCircuitOpen means a circuit breaker rejected the call.
	KindCircuitOpen
	// KindValidation is a caller-classified input defect.
	KindValidation
	// KindUpstream means the wrapped call itself failed.
	KindUpstream
	// KindResource is an acquisition or release failure.
	KindResource
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCircuitOpen:
		return "circuit-open"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Retriable reports whether failures of this kind are worth retrying.
// Circuit-open failures are rejected before any work runs, and validation
// failures will not improve on a second attempt.
func (k Kind) Retriable() bool {
	switch k {
	case KindCircuitOpen, KindValidation:
		return false
	default:
		return true
	}
}
