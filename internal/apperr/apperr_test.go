package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := Wrap(Storage, "write failed", errors.New("disk full"))
	want := "storage: write failed: disk full"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWrapStageIncludesStage(t *testing.T) {
	err := WrapStage("transcode", "ffmpeg failed", errors.New("exit 1"))
	if err.Stage != "transcode" {
		t.Fatalf("Stage = %q, want transcode", err.Stage)
	}
	if err.Kind != Processing {
		t.Fatalf("Kind = %q, want processing", err.Kind)
	}
}

func TestKindOfUnwrapsFmtErrorf(t *testing.T) {
	inner := New(NotFound, "slug missing")
	wrapped := fmt.Errorf("get_by_slug: %w", inner)

	kind, ok := KindOf(wrapped)
	if !ok || kind != NotFound {
		t.Fatalf("KindOf(wrapped) = (%v, %v), want (not_found, true)", kind, ok)
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(New(NotFound, "x")) {
		t.Error("IsNotFound should match NotFound error")
	}
	if IsNotFound(New(Conflict, "x")) {
		t.Error("IsNotFound should not match Conflict error")
	}
	if !IsCancelled(fmt.Errorf("wrap: %w", New(Cancelled, "x"))) {
		t.Error("IsCancelled should unwrap through fmt.Errorf")
	}
}

func TestErrorIsSentinelComparison(t *testing.T) {
	err := Wrap(NotFound, "upload missing", errors.New("row not found"))
	if !errors.Is(err, New(NotFound, "")) {
		t.Error("errors.Is should match on Kind against a bare sentinel")
	}
	if errors.Is(err, New(Conflict, "")) {
		t.Error("errors.Is should not match a different Kind")
	}
}
