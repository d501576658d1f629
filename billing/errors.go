/*
errors.go - Error taxonomy for the reconciliation engine

ERROR CATEGORIES:
  1. ValidationError - malformed or missing period/apartment identifiers.
     Caller-correctable, surfaced as 400.
  2. NotFoundError - single-entity lookups only (an apartment missing from
     the registry). Aggregate queries return empty results instead.
  3. DataAccessError - the record store failed. Not retried by the engine;
     re-querying is idempotent so the caller may retry. Surfaced as 500.

PROPAGATION:
  Errors are raised by the layer that detects them and returned unmodified
  to the request boundary. Composite reports never suppress a failing
  sub-aggregation.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDataAccess = errors.New("record store unavailable")

	// ErrDuplicatePayment is returned when a payment with the same
	// idempotency key was already recorded.
	ErrDuplicatePayment = errors.New("duplicate payment idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Kind string // "apartment"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DataAccessError wraps a driver error with the failing operation.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the driver error.
func (e *DataAccessError) Unwrap() []error { return []error{ErrDataAccess, e.Err} }

// WrapDataAccess is used by store adapters. nil stays nil, and errors that
// are already classified pass through.
func WrapDataAccess(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDataAccess) || errors.Is(err, ErrDuplicatePayment) {
		return err
	}
	return &DataAccessError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicatePayment)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
