package document

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store errors. Codes are part of the public API
// surface; handlers map them to HTTP status codes.
type ErrorCode string

const (
	// CodeAccessDenied marks an authorization failure. Never retried.
	CodeAccessDenied ErrorCode = "ACCESS_DENIED"

	// CodeConflict marks an optimistic-lock version mismatch. The caller
	// should reload the document and retry.
	CodeConflict ErrorCode = "OPTIMISTIC_LOCK_CONFLICT"

	// CodeInvalidReference marks an operation targeting a document id that
	// does not exist.
	CodeInvalidReference ErrorCode = "INVALID_REFERENCE"

	// CodeInvalidParameter marks malformed caller input, e.g. an id that
	// does not match the unique-id pattern.
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// CodeQueryNotUnderstandable marks a search term the query parser
	// rejected.
	CodeQueryNotUnderstandable ErrorCode = "QUERY_NOT_UNDERSTANDABLE"

	// CodeIndexUnavailable marks a transient index failure. The event log
	// entry stays queued and the effect is retried out of band.
	CodeIndexUnavailable ErrorCode = "INDEX_UNAVAILABLE"
)

// Error is the structured error returned across the store's public boundary.
// It carries a machine-readable code and a human message; internal stack
// detail is never exposed.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a store error with an optional wrapped cause.
func NewError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

// AccessDeniedError returns the uniform authorization failure. The message is
// deliberately identical for all operations so callers cannot probe what
// exactly was denied.
func AccessDeniedError(op string) *Error {
	return &Error{Code: CodeAccessDenied, Message: op + " - you are not allowed to perform this operation"}
}

func codeOf(err error) (ErrorCode, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// IsAccessDenied reports whether err is an authorization failure.
func IsAccessDenied(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeAccessDenied
}

// IsConflict reports whether err is an optimistic-lock conflict.
func IsConflict(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeConflict
}

// IsInvalidReference reports whether err targets a missing document.
func IsInvalidReference(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeInvalidReference
}

// IsQueryNotUnderstandable reports whether err is a query syntax failure.
func IsQueryNotUnderstandable(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeQueryNotUnderstandable
}

// IsIndexUnavailable reports whether err is a transient index failure.
func IsIndexUnavailable(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeIndexUnavailable
}
