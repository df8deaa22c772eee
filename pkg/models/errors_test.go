package models

import (
	"errors"
	"testing"
)

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{ErrBusy, true},
		{ErrValidation, false},
		{ErrNotFound, false},
		{ErrPermissionDenied, false},
		{ErrSchemaConflict, false},
		{ErrToolLoopExhausted, false},
		{ErrToolExecution, false},
		{ErrUpstream, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := &Error{Kind: tt.kind}
			if got := e.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	busy := NewError(ErrBusy, "write locked", nil)
	if !errors.Is(busy, &Error{Kind: ErrBusy}) {
		t.Error("expected Is to match on kind alone")
	}
	if errors.Is(busy, &Error{Kind: ErrValidation}) {
		t.Error("expected Is to not match a different kind")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("sqlite: database is locked")
	wrapped := NewError(ErrBusy, "write retry exhausted", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("expected Unwrap to expose the underlying cause")
	}
}

func TestError_Error_IncludesMessage(t *testing.T) {
	err := NewError(ErrValidation, "missing field title", nil)
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty error string")
	}
}
