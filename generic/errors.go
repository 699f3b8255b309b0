/*
errors.go - Centralized error types for the financing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every structured error unwraps to one sentinel, so callers classify with
  errors.Is and extract details with errors.As.

ERROR CATEGORIES:
  1. Validation errors  - Malformed loan terms or request input
  2. Not-found errors   - Unknown account or installment number
  3. State conflicts    - Paying a paid installment, reverting an unpaid one
  4. Persistence errors - Storage collaborator failures (always surfaced)

PROPAGATION:
  The pure engine (schedule, status, summary) never fails on validated
  terms. Reconciler and service errors are expected and recoverable: they
  carry the account id and installment number so the caller can retry or
  report.

USAGE:
  if errors.Is(err, generic.ErrStateConflict) {
      var conflict *generic.StateConflictError
      errors.As(err, &conflict)
      fmt.Println("installment", conflict.Installment, "is", conflict.Status)
  }

SEE ALSO:
  - installment/reconcile.go: Raises NotFound and StateConflict
  - installment/service.go: Wraps storage failures in PersistenceError
  - api/handlers.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when loan terms or request input are malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown accounts or out-of-range installments.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict is returned when an operation does not apply to the
	// installment's current status.
	ErrStateConflict = errors.New("state conflict")

	// ErrPersistence is returned when the storage collaborator fails.
	ErrPersistence = errors.New("persistence failure")

	// ErrIDExhausted is returned when no unique identifier could be produced.
	ErrIDExhausted = errors.New("identifier space exhausted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies a missing account, or a missing installment when
// Installment is non-zero.
type NotFoundError struct {
	AccountID   string
	Installment int
}

func (e *NotFoundError) Error() string {
	if e.Installment != 0 {
		return fmt.Sprintf("installment %d not found on account %s", e.Installment, e.AccountID)
	}
	return fmt.Sprintf("account %s not found", e.AccountID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StateConflictError reports an operation that does not fit the
// installment's current status.
type StateConflictError struct {
	AccountID   string
	Installment int
	Status      string
	Op          string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s installment %d on account %s: status is %s",
		e.Op, e.Installment, e.AccountID, e.Status)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// PersistenceError wraps a storage failure with the operation context.
// Both ErrPersistence and the underlying cause are reachable through
// errors.Is / errors.As.
type PersistenceError struct {
	Op          string
	AccountID   string
	Installment int
	Err         error
}

func (e *PersistenceError) Error() string {
	if e.Installment != 0 {
		return fmt.Sprintf("%s account %s installment %d: %v", e.Op, e.AccountID, e.Installment, e.Err)
	}
	return fmt.Sprintf("%s account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStateConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
