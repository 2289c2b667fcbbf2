package chat

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no token", ErrNoToken, false},
		{"wrapped no token", fmt.Errorf("send: %w", ErrNoToken), false},
		{"not found", ErrNotFound, false},
		{"wrapped not found", fmt.Errorf("history: %w", ErrNotFound), false},
		{"server error", &StatusError{Code: 502, Body: "bad gateway"}, true},
		{"wrapped server error", fmt.Errorf("send: %w", &StatusError{Code: 500}), true},
		{"plain error", errors.New("dns failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	withBody := &StatusError{Code: 503, Body: "overloaded"}
	if got := withBody.Error(); got != "server error: 503 - overloaded" {
		t.Errorf("Error() = %q", got)
	}
	bare := &StatusError{Code: 500}
	if got := bare.Error(); got != "server error: 500" {
		t.Errorf("Error() = %q", got)
	}
}
