package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInternal           = errors.New("internal error")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrConnection marks a broker or store that could not be reached.
	ErrConnection = errors.New("connection error")
	// ErrMalformedEvent marks a payload that can never be handled, retrying is pointless.
	ErrMalformedEvent = errors.New("malformed event")
)

// HandlerError is returned by the dispatcher once a handler has exhausted its attempts.
type HandlerError struct {
	RoutingKey string
	Attempts   int
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q failed after %d attempt(s): %v", e.RoutingKey, e.Attempts, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Connection wraps err so that errors.Is(err, ErrConnection) holds.
func Connection(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}

// Malformed wraps err so that errors.Is(err, ErrMalformedEvent) holds.
func Malformed(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformedEvent, reason)
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformedEvent, reason, err)
}
