package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend operations. The store never throws past its
// API surface; every operation resolves to success or one of these
// classified failures so callers can pick between retry, redirect, and
// surface-to-user. Use errors.Is() to check for them.
var (
	// ErrNoToken indicates no bearer token is configured. The request
	// fails locally without a network round-trip and is never retried
	// automatically.
	ErrNoToken = errors.New("no auth token configured")

	// ErrNotFound indicates the requested resource is confirmed gone
	// server-side. Callers should redirect rather than retry; the store
	// clears local state referring to the dead resource.
	ErrNotFound = errors.New("not found")
)

// StatusError is a transient server failure: a non-2xx response or an
// unparseable body. Eligible for bounded retry with backoff at the calling
// layer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server error: %d - %s", e.Code, e.Body)
	}
	return fmt.Sprintf("server error: %d", e.Code)
}

// IsTransient reports whether err is worth retrying: a StatusError that is
// neither a local precondition failure nor a terminal not-found.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoToken) || errors.Is(err, ErrNotFound) {
		return false
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}
