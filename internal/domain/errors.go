package domain

import "github.com/pkg/errors"

type Code string

const (
	CodeAuthRequired     Code = "AUTH_REQUIRED"
	CodeInvalidParam     Code = "INVALID_PARAM"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeDuplicateSubmit  Code = "DUPLICATE_SUBMIT"
	CodeRateLimit        Code = "RATE_LIMIT"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnavailable      Code = "UNAVAILABLE"
)

// Error is a typed failure returned to callers. Code is the stable kind,
// Message is for humans.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf returns the kind carried by err, or "" when err has none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Unavailable marks a store failure. The engine never falls back to an
// unprotected write path, so the whole operation reports degraded.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return &Error{Code: CodeUnavailable, Message: "store unavailable", cause: err}
}

func InvalidParam(message string) *Error {
	return NewError(CodeInvalidParam, message)
}

var (
	ErrAuthRequired      = NewError(CodeAuthRequired, "user is not logged in")
	ErrOrderNotFound     = NewError(CodeNotFound, "order not found")
	ErrTaskNotFound      = NewError(CodeNotFound, "task not found")
	ErrActiveOrderExists = NewError(CodeInvalidState, "product already has an active order")
	ErrDuplicateSubmit   = NewError(CodeDuplicateSubmit, "order is already being created")
	ErrOrderNotCompleted = NewError(CodeInvalidState, "order is not completed")
	ErrAlreadyReviewed   = NewError(CodeInvalidState, "order already reviewed")
	ErrNotParty          = NewError(CodePermissionDenied, "user is not a party of this order")
	ErrTrustContention   = NewError(CodeInvalidState, "trust record kept changing during update")
)
