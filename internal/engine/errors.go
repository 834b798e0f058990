// errors.go: structured error types for the five engine-level error kinds,
// built on github.com/agilira/go-errors for error codes, context, and
// retryability, in the same style as the rest of the AGILira-flavored stack
// this engine borrows from.
package engine

import (
	goerrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the five kinds of failure the engine's contract defines.
const (
	ErrCodeRecordNotFound errors.ErrorCode = "RECCORE_RECORD_NOT_FOUND"
	ErrCodeDuplicateKey   errors.ErrorCode = "RECCORE_DUPLICATE_KEY"
	ErrCodeTransactionErr errors.ErrorCode = "RECCORE_TRANSACTION_ERROR"
	ErrCodeFormatError    errors.ErrorCode = "RECCORE_FORMAT_ERROR"
	ErrCodeFatalIO        errors.ErrorCode = "RECCORE_FATAL_IO"
)

const (
	msgRecordNotFound = "record not found"
	msgDuplicateKey   = "duplicate primary key"
	msgTransactionErr = "no valid lock held by this caller"
	msgFormatError    = "data file format invariant violated"
	msgFatalIO        = "fatal I/O error"
)

// NewRecordNotFound builds a RecordNotFound error for record n.
func NewRecordNotFound(n int64) error {
	return errors.NewWithField(ErrCodeRecordNotFound, msgRecordNotFound, "record", n)
}

// NewRecordNotFoundSearch builds a RecordNotFound error for a find() that
// matched nothing.
func NewRecordNotFoundSearch() error {
	return errors.New(ErrCodeRecordNotFound, msgRecordNotFound+": no rows matched")
}

// NewDuplicateKey builds a DuplicateKey error for the given primary key.
func NewDuplicateKey(key string) error {
	return errors.NewWithField(ErrCodeDuplicateKey, msgDuplicateKey, "key", key)
}

// NewTransactionError builds a TransactionError for record n and caller.
func NewTransactionError(n int64, caller string) error {
	return errors.NewWithContext(ErrCodeTransactionErr, msgTransactionErr, map[string]interface{}{
		"record": n,
		"caller": caller,
	})
}

// NewTransactionErrorPKChange builds a TransactionError for an unlock that
// would have changed a record's primary key.
func NewTransactionErrorPKChange(n int64) error {
	return errors.NewWithField(ErrCodeTransactionErr,
		"update must not change the primary key; delete and create instead", "record", n)
}

// NewFormatError wraps cause as a fatal FormatError.
func NewFormatError(cause error) error {
	return errors.Wrap(cause, ErrCodeFormatError, msgFormatError)
}

// NewFatalIO wraps cause as a FatalIO error. The lock, if any, has already
// been released by the time this is returned to the caller.
func NewFatalIO(cause error) error {
	return errors.Wrap(cause, ErrCodeFatalIO, msgFatalIO).AsRetryable()
}

// errorCode extracts the structured code from err, or "" if err does not
// carry one.
func errorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}

	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}

	return ""
}

// IsRecordNotFound reports whether err is a RecordNotFound error.
func IsRecordNotFound(err error) bool { return errorCode(err) == ErrCodeRecordNotFound }

// IsDuplicateKey reports whether err is a DuplicateKey error.
func IsDuplicateKey(err error) bool { return errorCode(err) == ErrCodeDuplicateKey }

// IsTransactionError reports whether err is a TransactionError.
func IsTransactionError(err error) bool { return errorCode(err) == ErrCodeTransactionErr }

// IsFormatError reports whether err is a FormatError.
func IsFormatError(err error) bool { return errorCode(err) == ErrCodeFormatError }

// IsFatalIO reports whether err is a FatalIO error.
func IsFatalIO(err error) bool { return errorCode(err) == ErrCodeFatalIO }
