/*
errors.go - Centralized error types for the tariff engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the API layer maps these
  to HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - bad input shape or range, rejected before any write
  2. Idempotency errors - a period already applied, rejected before any write
  3. Not-found errors   - missing clients, routes, assignments
  4. Storage errors     - collaborator failures, surfaced outward unchanged

NOTE ON PARTIAL FAILURE:
  A partially failed monthly batch is NOT an error. The orchestrator
  reports an AdjustmentResult with success and failure counts; see
  adjustment.go.

SEE ALSO:
  - adjustment.go: AlreadyAppliedError usage
  - index.go: validation of diesel samples
*/
package tariff

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input-validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyApplied is returned when a monthly adjustment has already
	// been committed for the requested calendar month.
	ErrAlreadyApplied = errors.New("adjustment already applied for this period")

	// ErrEmptyIndex is returned when a diesel delta is requested but the
	// price series has no samples.
	ErrEmptyIndex = errors.New("diesel price index is empty")

	// ErrZeroBasePrice is returned when a diesel delta is requested
	// against a zero base price.
	ErrZeroBasePrice = errors.New("base diesel price is zero")

	// ErrClientNotFound / ErrRouteNotFound / ErrAssignmentNotFound are
	// returned when a referenced record does not exist.
	ErrClientNotFound     = errors.New("client not found")
	ErrRouteNotFound      = errors.New("route not found")
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrAssignmentInactive is returned when a rate change targets a
	// deactivated assignment.
	ErrAssignmentInactive = errors.New("assignment is not active")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AlreadyAppliedError carries the month and the prior run that blocks a
// repeat application.
type AlreadyAppliedError struct {
	Month Month
	Run   *AdjustmentRun
}

func (e *AlreadyAppliedError) Error() string {
	return fmt.Sprintf("monthly adjustment already applied for %s", e.Month)
}

func (e *AlreadyAppliedError) Unwrap() error { return ErrAlreadyApplied }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a blocked (but well-formed) action.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAlreadyApplied) ||
		errors.Is(err, ErrAssignmentInactive)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrRouteNotFound) ||
		errors.Is(err, ErrAssignmentNotFound)
}
