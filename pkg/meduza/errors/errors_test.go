package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/matryer/is"
)

func TestModelErrorMatchesBothTargets(t *testing.T) {
	is := is.New(t)

	err := NewModelError(ErrHeterogeneousBatch, "expected *User, got *Post")

	is.True(errors.Is(err, ErrModel))              // should be a model error
	is.True(errors.Is(err, ErrHeterogeneousBatch)) // should carry the reason
	is.True(!errors.Is(err, ErrNotAModel))
	is.Equal(err.Error(), "heterogeneous batch: expected *User, got *Post")
}

func TestRequestErrorKeepsServerMessage(t *testing.T) {
	is := is.New(t)

	err := fmt.Errorf("select failed: %w", NewRequestError("table Users not found"))

	var reqErr *RequestError
	is.True(errors.As(err, &reqErr))
	is.Equal(reqErr.Message, "table Users not found")
	is.True(errors.Is(err, ErrRequest))
}

func TestColumnValueErrorIsNotAProtocolError(t *testing.T) {
	is := is.New(t)

	err := NewColumnValueError("too long")
	is.True(errors.Is(err, ErrColumnValue))
	is.True(!errors.Is(err, ErrProtocol))
}
