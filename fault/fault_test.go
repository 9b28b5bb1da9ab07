package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	r := New(KindUpstream, "connection refused")

	if r.Kind() != KindUpstream {
		t.Errorf("Kind() = %v, want upstream", r.Kind())
	}
	if r.Error() != "connection refused" {
		t.Errorf("Error() = %q", r.Error())
	}
	if r.Unwrap() != nil {
		t.Error("Unwrap() should be nil for a root record")
	}
}

func TestWrap_InheritsKind(t *testing.T) {
	root := New(KindTimeout, "deadline elapsed")
	wrapped := Wrap(root, "fetch profile")

	if wrapped.Kind() != KindTimeout {
		t.Errorf("Kind() = %v, want timeout", wrapped.Kind())
	}
	if wrapped.Unwrap() != root {
		t.Error("Unwrap() should return the original record")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "call %q", "x") != nil {
		t.Error("Wrapf(nil) should be nil")
	}
	if WrapKind(KindResource, nil, "context") != nil {
		t.Error("WrapKind(nil) should be nil")
	}
}

func TestWrapKind_Overrides(t *testing.T) {
	root := errors.New("disk full")
	wrapped := WrapKind(KindResource, root, "open journal")

	if wrapped.Kind() != KindResource {
		t.Errorf("Kind() = %v, want resource", wrapped.Kind())
	}
	if !errors.Is(wrapped, root) {
		t.Error("errors.Is should see through the wrap")
	}
}

func TestRootCause_TripleWrap(t *testing.T) {
	root := New(KindUpstream, "connection refused")
	l1 := Wrap(root, "dial")
	l2 := Wrap(l1, "fetch")
	l3 := Wrapf(l2, "call %q", "user-svc")

	if got := RootCause(l3); got != root {
		t.Errorf("RootCause() = %v, want the original record", got)
	}

	// Wrapping must not mutate the wrapped records.
	if root.Error() != "connection refused" {
		t.Errorf("root mutated: %q", root.Error())
	}
	if l1.Unwrap() != root {
		t.Error("inner chain mutated by outer wraps")
	}
}

func TestRootCause_NonRecord(t *testing.T) {
	root := errors.New("boom")
	wrapped := fmt.Errorf("outer: %w", root)

	if got := RootCause(wrapped); got != root {
		t.Errorf("RootCause() = %v, want %v", got, root)
	}
	if RootCause(nil) != nil {
		t.Error("RootCause(nil) should be nil")
	}
}

func TestIs_AnyLevel(t *testing.T) {
	root := New(KindValidation, "bad input")
	wrapped := WrapKind(KindUpstream, Wrap(root, "handle"), "call")

	if !Is(wrapped, KindValidation) {
		t.Error("Is() should find validation at the root")
	}
	if !Is(wrapped, KindUpstream) {
		t.Error("Is() should find upstream at the top")
	}
	if Is(wrapped, KindCircuitOpen) {
		t.Error("Is() found a kind not in the chain")
	}
	if Is(nil, KindUpstream) {
		t.Error("Is(nil) should be false")
	}
}

func TestIs_ContextErrors(t *testing.T) {
	wrapped := fmt.Errorf("attempt: %w", context.DeadlineExceeded)

	if !Is(wrapped, KindTimeout) {
		t.Error("deadline exceeded should classify as timeout")
	}
	if !Is(context.Canceled, KindTimeout) {
		t.Error("cancellation should classify as timeout")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"record", New(KindResource, "x"), KindResource},
		{"wrapped record", fmt.Errorf("outer: %w", New(KindTimeout, "x")), KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetriable(t *testing.T) {
	if Retriable(New(KindValidation, "x")) {
		t.Error("validation should not be retriable")
	}
	if Retriable(New(KindCircuitOpen, "x")) {
		t.Error("circuit-open should not be retriable")
	}
	if !Retriable(New(KindTimeout, "x")) {
		t.Error("timeout should be retriable")
	}
	if !Retriable(New(KindUpstream, "x")) {
		t.Error("upstream should be retriable")
	}
	if Retriable(context.Canceled) {
		t.Error("caller cancellation should not be retriable")
	}
}

func TestWithSuppressed(t *testing.T) {
	primary := Wrap(New(KindUpstream, "refused"), "call")
	secondary := New(KindResource, "release failed")

	combined := WithSuppressed(primary, secondary)

	rec, ok := combined.(*Record)
	if !ok {
		t.Fatalf("WithSuppressed() = %T, want *Record", combined)
	}
	if len(rec.Suppressed()) != 1 || rec.Suppressed()[0] != secondary {
		t.Errorf("Suppressed() = %v", rec.Suppressed())
	}
	if len(primary.Suppressed()) != 0 {
		t.Error("WithSuppressed mutated the primary record")
	}
	if !strings.Contains(combined.Error(), "suppressed: release failed") {
		t.Errorf("Error() = %q, suppressed context missing", combined.Error())
	}
	// Primary chain must survive intact.
	if !Is(combined, KindUpstream) {
		t.Error("primary kind lost")
	}
}

func TestWithSuppressed_Nils(t *testing.T) {
	primary := New(KindUpstream, "x")

	if got := WithSuppressed(primary, nil); got != primary {
		t.Error("nil secondary should return primary unchanged")
	}
	secondary := New(KindResource, "y")
	if got := WithSuppressed(nil, secondary); got != secondary {
		t.Error("nil primary should return secondary")
	}
}

func TestError_RendersChain(t *testing.T) {
	err := Wrapf(Wrap(New(KindUpstream, "connection refused"), "dial tcp"), "call %q", "svc-a")

	want := `call "svc-a": dial tcp: connection refused`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindTimeout, "timeout"},
		{KindCircuitOpen, "circuit-open"},
		{KindValidation, "validation"},
		{KindUpstream, "upstream"},
		{KindResource, "resource"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
