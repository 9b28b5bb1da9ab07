package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Record is an immutable, classified error with an optional cause.
// A chain of records forms the causal history of a failure.
type Record struct {
	kind       Kind
	msg        string
	cause      error
	suppressed []error
}

// New creates a record with the given kind and message.
func New(kind Kind, msg string) *Record {
	return &Record{kind: kind, msg: msg}
}

// Newf creates a record with a formatted message.
func Newf(kind Kind, format string, args ...any) *Record {
	return &Record{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap prepends context to err, keeping err as the cause. The new record
// inherits the kind of err. Wrapping nil returns nil.
func Wrap(err error, msg string) *Record {
	if err == nil {
		return nil
	}
	return &Record{kind: KindOf(err), msg: msg, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) *Record {
	if err == nil {
		return nil
	}
	return &Record{kind: KindOf(err), msg: fmt.Sprintf(format, args...), cause: err}
}

// WrapKind prepends context to err with an explicit kind, overriding
// whatever classification the cause carries.
func WrapKind(kind Kind, err error, msg string) *Record {
	if err == nil {
		return nil
	}
	return &Record{kind: kind, msg: msg, cause: err}
}

// Error renders the full chain, outermost context first, with suppressed
// secondary failures appended.
func (r *Record) Error() string {
	var b strings.Builder
	b.WriteString(r.msg)
	if r.cause != nil {
		b.WriteString(": ")
		b.WriteString(r.cause.Error())
	}
	for _, s := range r.suppressed {
		b.WriteString(" (suppressed: ")
		b.WriteString(s.Error())
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the cause, if any.
func (r *Record) Unwrap() error {
	return r.cause
}

// Kind returns the record's classification.
func (r *Record) Kind() Kind {
	return r.kind
}

// Message returns the record's own context message, without the chain.
func (r *Record) Message() string {
	return r.msg
}

// Suppressed returns secondary failures attached to this record.
func (r *Record) Suppressed() []error {
	return r.suppressed
}

// WithSuppressed returns a copy of primary carrying secondary as suppressed
// context. The primary error and its chain are not modified; a non-record
// primary is wrapped first. A nil secondary returns primary unchanged.
func WithSuppressed(primary error, secondary error) error {
	if secondary == nil {
		return primary
	}
	if primary == nil {
		return secondary
	}
	var rec *Record
	if r, ok := primary.(*Record); ok {
		rec = &Record{kind: r.kind, msg: r.msg, cause: r.cause}
		rec.suppressed = append(append([]error{}, r.suppressed...), secondary)
		return rec
	}
	rec = Wrap(primary, "failed")
	rec.suppressed = []error{secondary}
	return rec
}

// RootCause walks the chain and returns the innermost error.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// Is reports whether kind appears at any level of the chain.
func Is(err error, kind Kind) bool {
	if kind == KindTimeout && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if r, ok := e.(*Record); ok && r.kind == kind {
			return true
		}
	}
	return false
}

// KindOf returns the classification of the outermost classified error in
// the chain. A bare context deadline or cancellation classifies as timeout;
// anything else unclassified is KindUnknown.
func KindOf(err error) Kind {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if r, ok := e.(*Record); ok {
			return r.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// Retriable reports whether err is worth retrying, based on its kind.
// Cancellation of the caller's own context is never retriable: the caller
// has gone away.
func Retriable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err).Retriable()
}
