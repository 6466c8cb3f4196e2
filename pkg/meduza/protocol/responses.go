package protocol

import (
	"time"

	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/query"
)

// Header is the part every response carries: the server error, if any, and the processing time in seconds
type Header struct {
	Error *string `bson:"error"`
	Time  float64 `bson:"time"`
}

// Err returns a RequestError whenever the server sent a non-null error, even an empty one
func (h Header) Err() error {
	if h.Error == nil {
		return nil
	}
	return errors.NewRequestError(*h.Error)
}

func (h Header) Duration() time.Duration {
	return time.Duration(h.Time * float64(time.Second))
}

func (h *Header) header() *Header {
	return h
}

// Failed returns a header carrying a server error message
func Failed(msg string) Header {
	return Header{Error: &msg}
}

type Response interface {
	Err() error
	Duration() time.Duration
}

type envelope interface {
	Response
	header() *Header
}

type GetResponse struct {
	Header   `bson:",inline"`
	Entities []query.Entity `bson:"entities"`
	Total    int            `bson:"total"`
}

type PutResponse struct {
	Header `bson:",inline"`
	IDs    []string `bson:"ids"`
}

type DelResponse struct {
	Header `bson:",inline"`
	Num    int `bson:"num"`
}

type UpdateResponse struct {
	Header `bson:",inline"`
	Num    int `bson:"num"`
}

type PingResponse struct {
	Header `bson:",inline"`
}
