package uploads

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error category. The HTTP layer maps
// kinds to statuses; clients branch on them.
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindNotFound    Kind = "not_found"
	KindCapacity    Kind = "capacity_error"
	KindConflict    Kind = "conflict_error"
	KindIntegrity   Kind = "integrity_error"
	KindExpired     Kind = "expired_error"
	KindEmptyUpload Kind = "empty_upload"
	KindStorage     Kind = "storage_error"
)

// Error is the structured error returned by all engine operations.
type Error struct {
	Kind    Kind
	Message string
	// Missing lists the absent sequence numbers on an integrity failure.
	Missing []int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind == kind
	}
	return false
}

// ErrKind extracts the kind from an engine error, or empty string.
func ErrKind(err error) Kind {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	return ""
}

func validationErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(sessionID string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("upload session %s not found", sessionID)}
}

func capacityErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindCapacity, Message: fmt.Sprintf(format, args...)}
}

func conflictErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func integrityErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindIntegrity, Message: fmt.Sprintf(format, args...)}
}

func expiredErrorf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExpired, Message: fmt.Sprintf(format, args...)}
}

func storageError(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}
