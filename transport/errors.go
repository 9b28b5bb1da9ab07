package transport

import "github.com/jonwraymond/bulwark/fault"

// Common errors returned by the transport package.
var (
	// ErrBodyNotReplayable is returned when a request carries a body but no
	// GetBody, so a retried attempt could not resend it.
	ErrBodyNotReplayable = fault.New(fault.KindValidation, "transport: request body is not replayable")
)
