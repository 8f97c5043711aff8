package oplog

import "errors"

// Failure classes returned by the log store and rollback engine. Handlers map
// these to HTTP statuses; anything else is a storage failure and surfaces as
// an internal error after the transaction has been rolled back.
var (
	// ErrNotFound means the referenced log entry does not exist.
	ErrNotFound = errors.New("operation log not found")

	// ErrForbidden means the caller is neither an admin nor the entry's actor.
	ErrForbidden = errors.New("operation log not accessible")

	// ErrConflict means the entry is already rolled back, is itself a
	// reversal, or lost the race against a concurrent rollback.
	ErrConflict = errors.New("operation already rolled back")

	// ErrApply means the old-value snapshot could not be applied because the
	// target equipment no longer exists.
	ErrApply = errors.New("rollback target no longer exists")
)
