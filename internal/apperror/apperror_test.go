package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := Wrap(inner, ErrInternal)

	if got := err.Error(); got != ErrInternal.Message {
		t.Errorf("Error() = %q, want %q", got, ErrInternal.Message)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target *Error
		want   bool
	}{
		{"matching error", ErrFileTooLarge, ErrFileTooLarge, true},
		{"wrapped by apperror", Wrap(errors.New("inner"), ErrFileTooLarge), ErrFileTooLarge, true},
		{"wrapped by fmt", fmt.Errorf("submit: %w", ErrVideoPublic), ErrVideoPublic, true},
		{"different code", ErrForbidden, ErrNotFound, false},
		{"plain error", errors.New("regular error"), ErrNotFound, false},
		{"nil error", nil, ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.target); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"too large", ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"invalid type", ErrInvalidFileType, http.StatusBadRequest},
		{"busy", ErrVideoBusy, http.StatusConflict},
		{"plain error defaults to 500", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSafeMessageAndCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantMsg  string
		wantCode string
	}{
		{"apperror", ErrVideoPublic, ErrVideoPublic.Message, "video_public"},
		{"wrapped", fmt.Errorf("delete: %w", Wrap(errors.New("row locked"), ErrVideoBusy)), ErrVideoBusy.Message, "video_busy"},
		{"plain error hides details", errors.New("pq: relation missing"), ErrInternal.Message, "internal_error"},
		{"nil", nil, ErrInternal.Message, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeMessage(tt.err); got != tt.wantMsg {
				t.Errorf("SafeMessage() = %q, want %q", got, tt.wantMsg)
			}
			if got := Code(tt.err); got != tt.wantCode {
				t.Errorf("Code() = %q, want %q", got, tt.wantCode)
			}
		})
	}
}
