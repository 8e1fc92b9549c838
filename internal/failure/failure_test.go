package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrPersistence, "store", "upsert", "write rows", cause)

	if !errors.Is(err, ErrPersistence) {
		t.Errorf("expected ErrPersistence in chain: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause in chain: %v", err)
	}
	want := "persistence error: store: upsert: write rows: disk full"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Input("transcribe", "missing", nil), "input"},
		{Integrity("merge", "length mismatch"), "integrity"},
		{Wrap(ErrPersistence, "store", "", "", nil), "persistence"},
		{Wrap(ErrBackend, "translate", "", "", nil), "backend"},
		{fmt.Errorf("stage: %w", context.Canceled), "cancelled"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrTransient, true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{errors.New("POST /v1/chat: 429 Too Many Requests"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("invalid api key"), false},
		{Input("translate", "empty text", nil), false},
	}

	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
