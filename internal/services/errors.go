package services

import "errors"

// Business and integrity errors shared across the services. Validation
// and business-rule failures are handled locally by the HTTP handlers;
// integrity violations are escalated and never masked by a success
// response.
var (
	// ErrInvalidAmount rejects non-positive amounts and deposits whose
	// fees would equal or exceed the gross value.
	ErrInvalidAmount = errors.New("amount must be a positive integer of cents")

	// ErrInsufficientFunds rejects a withdrawal whose total debit
	// exceeds the current balance. No side effects.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEntryNotFound is returned when no ledger entry matches the
	// given internal or external identifier exactly.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrUserNotFound is returned for an unknown account identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEntry signals an internal-id collision on insert.
	// Ids are generated uniquely, so observing this is an integrity
	// violation.
	ErrDuplicateEntry = errors.New("duplicate ledger entry id")

	// ErrInconsistentExternalID signals an attempt to overwrite an
	// already-attached external id with a different value.
	ErrInconsistentExternalID = errors.New("external id conflicts with previously stored value")
)
