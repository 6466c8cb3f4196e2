package errors

import (
	"fmt"
)

var ErrColumnValue = fmt.Errorf("invalid column value")
var ErrInvalidType = fmt.Errorf("invalid type")
var ErrModel = fmt.Errorf("model error")
var ErrNoPrimary = fmt.Errorf("no primary key")
var ErrMultiplePrimaries = fmt.Errorf("multiple primary keys")
var ErrNotAModel = fmt.Errorf("not a model")
var ErrHeterogeneousBatch = fmt.Errorf("heterogeneous batch")
var ErrMismatchingProperty = fmt.Errorf("mismatching property")
var ErrInvalidQuery = fmt.Errorf("invalid query")
var ErrNotFound = fmt.Errorf("not found")
var ErrRequest = fmt.Errorf("request error")
var ErrProtocol = fmt.Errorf("protocol error")

type myError struct {
	msg     string
	targets []error
}

func (m myError) Error() string { return m.msg }
func (m myError) Is(target error) bool {
	for _, t := range m.targets {
		if target == t {
			return true
		}
	}
	return false
}

func NewColumnValueError(msg string) error {
	return &myError{
		msg:     msg,
		targets: []error{ErrColumnValue},
	}
}

func NewInvalidTypeError(expected string, value any) error {
	return &myError{
		msg:     fmt.Sprintf("expected %s, got %T", expected, value),
		targets: []error{ErrInvalidType},
	}
}

// NewModelError returns an error that matches both ErrModel and the supplied reason
func NewModelError(reason error, msg string) error {
	return &myError{
		msg:     fmt.Sprintf("%s: %s", reason.Error(), msg),
		targets: []error{ErrModel, reason},
	}
}

func NewInvalidQueryError(msg string) error {
	return &myError{
		msg:     msg,
		targets: []error{ErrInvalidQuery},
	}
}

func NewNotFoundError(msg string) error {
	return &myError{
		msg:     msg,
		targets: []error{ErrNotFound},
	}
}

func NewProtocolError(msg string) error {
	return &myError{
		msg:     msg,
		targets: []error{ErrProtocol},
	}
}

// RequestError is returned when the server answers with a non-empty error field.
// Message is the server supplied text, unmodified.
type RequestError struct {
	Message string
}

func (r *RequestError) Error() string        { return r.Message }
func (r *RequestError) Is(target error) bool { return target == ErrRequest }

func NewRequestError(msg string) error {
	return &RequestError{Message: msg}
}
