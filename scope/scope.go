// Package scope provides guarded resource acquisition with release
// guaranteed on every exit path, and a weighted pool bounding concurrent
// acquisitions.
package scope

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonwraymond/bulwark/fault"
)

// Opener acquires a resource and returns its release function.
// On error no resource may be left behind.
type Opener func(ctx context.Context) (release func() error, err error)

// Handle is the ownership token for one acquired resource. It is owned by
// the scope that acquired it and released exactly once.
type Handle struct {
	name     string
	release  func() error
	released bool
}

// Name returns the name the resource was acquired under.
func (h *Handle) Name() string {
	return h.name
}

// Scope tracks acquired resources and releases any still held when closed.
// A Scope is safe for concurrent use, though attempts within an executor
// use one scope sequentially.
type Scope struct {
	mu      sync.Mutex
	handles []*Handle
	closed  bool
}

// New creates an empty scope.
func New() *Scope {
	return &Scope{}
}

// Acquire opens a resource and registers it for release. Acquisition
// failure returns a resource fault and registers nothing.
func (s *Scope) Acquire(ctx context.Context, name string, open Opener) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fault.Newf(fault.KindResource, "acquire %q: scope already closed", name)
	}
	s.mu.Unlock()

	release, err := open(ctx)
	if err != nil {
		return nil, fault.WrapKind(fault.KindResource, err, fmt.Sprintf("acquire %q", name))
	}

	h := &Handle{name: name, release: release}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Closed while we were opening; release immediately rather than leak.
		h.released = true
		if rerr := release(); rerr != nil {
			return nil, fault.WrapKind(fault.KindResource, rerr, fmt.Sprintf("release %q after close", name))
		}
		return nil, fault.Newf(fault.KindResource, "acquire %q: scope already closed", name)
	}
	s.handles = append(s.handles, h)
	return h, nil
}

// Release releases a single handle early. Releasing a handle twice is a
// programming error and is reported, never ignored.
func (s *Scope) Release(h *Handle) error {
	if h == nil {
		return fault.New(fault.KindResource, "release: nil handle")
	}

	s.mu.Lock()
	if h.released {
		s.mu.Unlock()
		return fault.Newf(fault.KindResource, "release %q: already released", h.name)
	}
	h.released = true
	s.mu.Unlock()

	if err := h.release(); err != nil {
		return fault.WrapKind(fault.KindResource, err, fmt.Sprintf("release %q", h.name))
	}
	return nil
}

// Close releases all still-held handles in reverse acquisition order.
// Release failures are joined into a single resource fault; Close is
// idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var pending []*Handle
	for i := len(s.handles) - 1; i >= 0; i-- {
		if h := s.handles[i]; !h.released {
			h.released = true
			pending = append(pending, h)
		}
	}
	s.handles = nil
	s.mu.Unlock()

	var firstErr error
	for _, h := range pending {
		if err := h.release(); err != nil {
			wrapped := fault.WrapKind(fault.KindResource, err, fmt.Sprintf("release %q", h.name))
			if firstErr == nil {
				firstErr = wrapped
			} else {
				firstErr = fault.WithSuppressed(firstErr, wrapped)
			}
		}
	}
	return firstErr
}

// Held returns the number of handles not yet released.
func (s *Scope) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, h := range s.handles {
		if !h.released {
			n++
		}
	}
	return n
}

// Run executes fn with a fresh scope and guarantees the scope is closed on
// every exit path: normal return, error, cancellation, and panic. A panic
// inside fn is converted to an upstream fault after the scope closes.
// A release failure after an otherwise successful fn surfaces as the
// returned error; after a failed fn it is attached as suppressed context.
func Run(ctx context.Context, fn func(ctx context.Context, s *Scope) error) (err error) {
	s := New()
	defer func() {
		cerr := s.Close()
		if r := recover(); r != nil {
			err = fault.Newf(fault.KindUpstream, "panic: %v", r)
		}
		if cerr != nil {
			if err == nil {
				err = cerr
			} else {
				err = fault.WithSuppressed(err, cerr)
			}
		}
	}()
	return fn(ctx, s)
}
