package bidbank

import (
	"errors"
	"fmt"

	"github.com/xraph/bidbank/id"
	"github.com/xraph/bidbank/lock"
	"github.com/xraph/bidbank/reservation"
	"github.com/xraph/bidbank/transaction"
)

// Sentinel errors for common failure scenarios.
var (
	// Account errors
	ErrAccountNotFound = errors.New("bidbank: account not found")
	ErrAccountExists   = errors.New("bidbank: account already exists")

	// Store errors
	ErrStoreClosed = errors.New("bidbank: store is closed")

	// Batch errors
	ErrBatchIDField = errors.New("bidbank: request sets " + BatchIDField + " while batch tagging is on")

	// Re-exported from subpackages so callers need only import bidbank.
	ErrNegativeReservation = reservation.ErrNegativeReservation
	ErrEmptyFieldKey       = transaction.ErrEmptyFieldKey
	ErrLockTimeout         = lock.ErrLockTimeout
)

// ReservationSourceError reports a reservation source that failed or
// returned a negative amount while reserved money was being summed.
type ReservationSourceError = reservation.SourceError

// RecordKeyCollisionError reports an extra field that collides with a fixed
// transaction record key.
type RecordKeyCollisionError = transaction.KeyCollisionError

// BackendReadError wraps a storage failure while reading a balance.
type BackendReadError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *BackendReadError) Error() string {
	return fmt.Sprintf("bidbank: %s for user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *BackendReadError) Unwrap() error { return e.Err }

// BackendWriteError wraps a storage failure while adjusting a balance.
// When it is returned the balance was not changed.
type BackendWriteError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *BackendWriteError) Error() string {
	return fmt.Sprintf("bidbank: %s for user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *BackendWriteError) Unwrap() error { return e.Err }

// PartialTransactionError means the balance adjustment is durable but the
// audit record could not be written. Record holds what should have been
// stored so the caller can reconcile.
type PartialTransactionError struct {
	Record *transaction.Record
	Err    error
}

func (e *PartialTransactionError) Error() string {
	return fmt.Sprintf("bidbank: balance of user %d adjusted by %d but transaction %s was not recorded: %v",
		e.Record.UserID, e.Record.Change, e.Record.ID, e.Err)
}

func (e *PartialTransactionError) Unwrap() error { return e.Err }

// BatchError reports where a MakeTransactions batch stopped. Requests before
// Index are committed; requests after it were not attempted.
type BatchError struct {
	BatchID   id.BatchID
	Index     int
	Request   transaction.Request
	Completed int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("bidbank: batch %s stopped at request %d (user %d) after %d committed: %v",
		e.BatchID, e.Index, e.Request.UserID, e.Completed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is an unknown account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsPartial returns true if a balance was adjusted without its audit record.
func IsPartial(err error) bool {
	var pe *PartialTransactionError
	return errors.As(err, &pe)
}

// IsRetryable returns true if the operation failed before changing any
// state and may be retried. Partial transactions are never retryable.
func IsRetryable(err error) bool {
	if IsPartial(err) {
		return false
	}
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrStoreClosed)
}
