/*
errors.go - Centralized error types for the obligation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps them to status codes with the helpers at the bottom.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, rejected before any write
  2. Conflict errors - The entry's current state forbids the transition
  3. Not found errors - Unknown definition or entry
  4. Store errors - Anything else, returned wrapped

USAGE:
  if errors.Is(err, obligation.ErrAlreadyPaid) {
      var conflict *obligation.ConflictError
      errors.As(err, &conflict) // conflict.Entry is the current state
  }

SEE ALSO:
  - ledger.go: Produces conflict errors
  - api/handlers.go: Maps errors to HTTP responses
*/
package obligation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidChannel is returned when a channel does not apply to an
	// entry's kind, or its amount is zero.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrAlreadyPaid is returned when marking a channel that is already paid.
	// The first writer wins; its paid date is preserved.
	ErrAlreadyPaid = errors.New("channel already paid")

	// ErrImmutableAfterPayment is returned when editing an amount that a
	// payment has already fixed.
	ErrImmutableAfterPayment = errors.New("entry is immutable after payment")

	// ErrDeleteNotAllowed is returned when deleting a paid or past entry.
	ErrDeleteNotAllowed = errors.New("entry cannot be deleted")

	// ErrDefinitionNotFound is returned when a referenced definition doesn't exist.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrDefinitionExists is returned when creating a definition whose ID
	// is taken.
	ErrDefinitionExists = errors.New("definition already exists")

	// ErrDefinitionInUse is returned when deleting a definition that still
	// has entries. Deactivate it instead.
	ErrDefinitionInUse = errors.New("definition has entries")

	// ErrDuplicateEntry is returned by stores when an entry for the same
	// (definition, period) already exists outside a batch insert.
	ErrDuplicateEntry = errors.New("entry already exists for period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidChannelError explains why a channel was rejected.
type InvalidChannelError struct {
	Channel Channel
	KindID  string
	Reason  string
}

func (e *InvalidChannelError) Error() string {
	return fmt.Sprintf("invalid channel %q for kind %q: %s", e.Channel, e.KindID, e.Reason)
}

func (e *InvalidChannelError) Unwrap() error {
	return ErrInvalidChannel
}

// ConflictError carries the entry as it currently is, so a client that
// lost a race can re-render without another read.
type ConflictError struct {
	Op    string
	Err   error // one of ErrAlreadyPaid, ErrImmutableAfterPayment, ErrDeleteNotAllowed
	Entry *Entry
}

func (e *ConflictError) Error() string {
	if e.Entry == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v (entry %s, period %s)", e.Op, e.Err, e.Entry.ID, e.Entry.Period)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func newConflict(op string, err error, entry *Entry) *ConflictError {
	return &ConflictError{Op: op, Err: err, Entry: entry}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict returns true if the error is a state conflict on an entry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrImmutableAfterPayment) ||
		errors.Is(err, ErrDeleteNotAllowed) ||
		errors.Is(err, ErrDefinitionInUse) ||
		errors.Is(err, ErrDefinitionExists) ||
		errors.Is(err, ErrDuplicateEntry)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidChannel)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
