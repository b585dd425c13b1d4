package domain

import "errors"

// Failure taxonomy surfaced to callers. Services wrap these with %w and a
// human message; handlers map them to HTTP statuses with errors.Is.
var (
	// ErrBadRequest marks a malformed or missing request payload.
	ErrBadRequest = errors.New("bad request")

	// ErrUncertainAccount marks an account reference that is missing,
	// ambiguous, not owned by the caller, or simply not there.
	ErrUncertainAccount = errors.New("uncertain account")

	// ErrForbiddenOperation marks an operation the ledger refuses: negative
	// or absent amount, insufficient funds, closing a funded account.
	ErrForbiddenOperation = errors.New("forbidden operation")

	// ErrLockTimeout means an exclusive account lock was not acquired within
	// the configured wait. Transient; the caller may retry the operation.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrNotFound marks an absent entity where existence is mandatory.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated means no valid principal is attached to the call.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAlreadyExists marks a uniqueness conflict, e.g. a taken username.
	ErrAlreadyExists = errors.New("already exists")
)
