package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the value of the "error" field in endpoint error bodies.
type ErrorCode string

const (
	ErrorNotFound         ErrorCode = "NOT_FOUND"
	ErrorMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// Status is the HTTP status answered for the code.
func (c ErrorCode) Status() int {
	switch c {
	case ErrorNotFound:
		return http.StatusNotFound
	case ErrorMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a client-facing code plus an internal reason for logs.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain. Anything else
// is internal.
func CodeOf(err error) ErrorCode {
	var ucErr *Error
	if errors.As(err, &ucErr) && ucErr != nil && ucErr.Code != "" {
		return ucErr.Code
	}
	return ErrorInternal
}
