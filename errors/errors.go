// Package errors defines the relay's error taxonomy and its mapping to the
// wire acknowledgment format. Handlers return these errors; the transport
// layer converts them uniformly, so no handler formats its own failures.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated rejects a connection at handshake. It never
	// reaches room state.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized rejects a command whose caller fails a
	// participant, ownership, or role check.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound rejects a command referencing an absent entity or a
	// cross-conversation mismatch.
	ErrNotFound = errors.New("not found")
	// ErrInternal is what a recovered handler fault surfaces as. The raw
	// cause is logged, never sent to the wire.
	ErrInternal = errors.New("internal error")
)

// ValidationError rejects a malformed or out-of-range payload before any
// store mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

// StoreError wraps a failed backing-store call with the operation that
// issued it. It is logged with context and surfaced generically.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store failure in %s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }

func Store(op string, err error) error {
	return StoreError{Op: op, Err: err}
}

// Ack is the uniform acknowledgment body returned for every acknowledged
// command, success or failure.
type Ack struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// MapToAck translates any handler error into the wire acknowledgment.
// Unknown errors deliberately collapse to a generic internal failure.
func MapToAck(err error, data any) Ack {
	if err == nil {
		return Ack{OK: true, Data: data}
	}

	var validationErr ValidationError
	var storeErr StoreError

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return Ack{Code: "UNAUTHENTICATED", Message: "authentication required"}
	case errors.Is(err, ErrUnauthorized):
		return Ack{Code: "UNAUTHORIZED", Message: "not allowed"}
	case errors.Is(err, ErrNotFound):
		return Ack{Code: "NOT_FOUND", Message: "target not found"}
	case errors.As(err, &validationErr):
		return Ack{Code: "VALIDATION_ERROR", Message: validationErr.Error()}
	case errors.As(err, &storeErr):
		return Ack{Code: "STORE_FAILURE", Message: "operation failed"}
	default:
		return Ack{Code: "INTERNAL", Message: "internal error"}
	}
}
