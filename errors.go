package dataset

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingProjectID is returned when no project id could be resolved.
	ErrMissingProjectID = errors.New("dataset: project id is required")
	// ErrNoService is returned when a Dataset has no service connection.
	ErrNoService = errors.New("dataset: no active service connection")
	// ErrKeyComplete is returned by AllocateIDs for a key that already has an id or name.
	ErrKeyComplete = errors.New("dataset: an incomplete key is required")
	// ErrKeyFrozen is returned when a key read from the service is modified.
	ErrKeyFrozen = errors.New("dataset: key is frozen")
	// ErrInvalidArgument reports a bad filter operator or property value.
	ErrInvalidArgument = errors.New("dataset: invalid argument")
	// ErrTransactionFinished is returned by a committed or rolled back transaction.
	ErrTransactionFinished = errors.New("dataset: transaction already finished")
)

// TransactionError is returned by RunInTransaction when the function or the
// commit fails. The transaction has been rolled back.
type TransactionError struct {
	Message string
	cause   error
}

func newTransactionError(msg string, cause error) *TransactionError {
	return &TransactionError{Message: msg, cause: cause}
}

func (e *TransactionError) Error() string {
	if e.cause == nil {
		return "dataset: " + e.Message
	}
	return fmt.Sprintf("dataset: %s: %s", e.Message, e.cause.Error())
}

// Cause returns the error that made the transaction fail.
func (e *TransactionError) Cause() error {
	return e.cause
}

func (e *TransactionError) Unwrap() error {
	return e.cause
}

func invalidArgumentf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
