package fhir

import (
	"errors"
	"fmt"
)

// Error is the error type returned by every store operation.
//
// Errors are categorized by Code:
//   - NotFound: the identity is absent or tombstoned
//   - Conflict: create with an id that names a live record
//   - VersionConflict: expected version differs from the current one
//   - InvalidRequest: malformed body, query or bundle entry
//   - TransactionAborted: a transaction entry failed and the store was restored
//   - TooCostly: a result would exceed a configured ceiling
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Identity is the affected record, when there is one.
	Identity Identity

	// Expected and Current carry the versions of a VersionConflict.
	Expected int
	Current  int

	// EntryIndex is the zero-based bundle entry of a TransactionAborted.
	EntryIndex int

	// Cause is the underlying error of a TransactionAborted.
	Cause error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeVersionConflict    ErrorCode = "VERSION_CONFLICT"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrCodeTransactionAborted ErrorCode = "TRANSACTION_ABORTED"
	ErrCodeTooCostly          ErrorCode = "TOO_COSTLY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code == ErrCodeTransactionAborted:
		return fmt.Sprintf("%s: entry %d: %v", e.Code, e.EntryIndex, e.Cause)
	case !e.Identity.IsZero():
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Identity)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause of a TransactionAborted.
func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError extracts the outermost *Error from err.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func hasCode(err error, code ErrorCode) bool {
	fe, ok := AsError(err)
	return ok && fe.Code == code
}

// IsNotFound returns true if the error is a not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsConflict returns true if the error is a create-on-live-id conflict.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsVersionConflict returns true if the error is an optimistic concurrency failure.
func IsVersionConflict(err error) bool {
	return hasCode(err, ErrCodeVersionConflict)
}

// IsInvalidRequest returns true if the error is a malformed-input error.
func IsInvalidRequest(err error) bool {
	return hasCode(err, ErrCodeInvalidRequest)
}

// IsTransactionAborted returns true if a transaction was rolled back.
func IsTransactionAborted(err error) bool {
	return hasCode(err, ErrCodeTransactionAborted)
}

// IsTooCostly returns true if the error is a result-size ceiling error.
func IsTooCostly(err error) bool {
	return hasCode(err, ErrCodeTooCostly)
}

// NewNotFound creates an Error for an absent or deleted record.
func NewNotFound(id Identity) *Error {
	return &Error{
		Code:     ErrCodeNotFound,
		Message:  "resource not found",
		Identity: id,
	}
}

// NewVersionNotFound creates an Error for a missing historical version.
func NewVersionNotFound(id Identity, version int) *Error {
	return &Error{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("version %d not found", version),
		Identity: id,
	}
}

// NewConflict creates an Error for a create on a live id.
func NewConflict(id Identity) *Error {
	return &Error{
		Code:     ErrCodeConflict,
		Message:  "resource already exists",
		Identity: id,
	}
}

// NewVersionConflict creates an Error for a failed expected-version check.
func NewVersionConflict(id Identity, expected, current int) *Error {
	return &Error{
		Code:     ErrCodeVersionConflict,
		Message:  fmt.Sprintf("expected version %d, current version is %d", expected, current),
		Identity: id,
		Expected: expected,
		Current:  current,
	}
}

// NewInvalidRequest creates an Error for malformed input.
func NewInvalidRequest(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewTransactionAborted wraps the failure of entry index.
func NewTransactionAborted(index int, cause error) *Error {
	return &Error{
		Code:       ErrCodeTransactionAborted,
		Message:    "transaction rolled back",
		EntryIndex: index,
		Cause:      cause,
	}
}

// NewTooCostly creates an Error for a result exceeding limit.
func NewTooCostly(what string, limit int) *Error {
	return &Error{
		Code:    ErrCodeTooCostly,
		Message: fmt.Sprintf("%s exceeds limit of %d", what, limit),
	}
}
