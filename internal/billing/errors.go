package billing

import (
	"errors"
	"fmt"
)

// Base error types. Callers match them with errors.Is.
var (
	ErrServiceUnavailable = errors.New("billing service unavailable")
	ErrUnauthorized       = errors.New("billing unauthorized")
	ErrNotFound           = errors.New("billing resource not found")
	ErrRejected           = errors.New("billing request rejected")
	ErrInvalidResponse    = errors.New("billing invalid response")
)

// ErrorKind classifies a failed gateway call.
type ErrorKind string

const (
	KindUnavailable     ErrorKind = "unavailable"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindNotFound        ErrorKind = "not_found"
	KindRejected        ErrorKind = "rejected"
	KindInvalidResponse ErrorKind = "invalid_response"
)

// Error is returned by every Gateway operation that fails.
type Error struct {
	Op      string // gateway operation, e.g. "list_courses"
	Kind    ErrorKind
	Status  int    // HTTP status, 0 on transport failure
	Code    int    // sentinel code from the response body, 0 if absent
	Message string // human readable message from the billing service
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("billing %s: %s", e.Op, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *Error) Is(target error) bool {
	switch target {
	case ErrServiceUnavailable:
		return e.Kind == KindUnavailable
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrInvalidResponse:
		return e.Kind == KindInvalidResponse
	}
	return false
}

// UserMessage returns the message to show an end user for err.
func UserMessage(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" && be.Kind == KindRejected {
		return be.Message
	}
	switch {
	case errors.Is(err, ErrServiceUnavailable):
		return "The billing service is temporarily unavailable. Please try again later."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrNotFound):
		return "The requested course is not available for purchase."
	}
	return "The billing service could not process the request."
}

func newError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}
