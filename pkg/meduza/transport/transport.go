package transport

import (
	"context"
	"fmt"

	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/protocol"
	"github.com/gomodule/redigo/redis"
)

// Transport is a bidirectional message channel to one server
type Transport interface {
	SendMessage(ctx context.Context, msg protocol.Message) error
	ReceiveMessage(ctx context.Context) (protocol.Message, error)
}

// Connector hands out a transport for one request/response cycle. Every
// acquired transport must be released, with the error of the cycle if it failed.
type Connector interface {
	Acquire(ctx context.Context) (Transport, error)
	Release(t Transport, err error)
}

// respTransport frames messages as the redis command `<TYPE> <body>` and reads
// replies as a two element array of type and body
type respTransport struct {
	conn redis.Conn
}

func NewRESPTransport(conn redis.Conn) Transport {
	return &respTransport{conn: conn}
}

func (t *respTransport) SendMessage(ctx context.Context, msg protocol.Message) error {
	if err := t.conn.Send(msg.Type, msg.Body); err != nil {
		return err
	}
	return t.conn.Flush()
}

func (t *respTransport) ReceiveMessage(ctx context.Context) (protocol.Message, error) {
	var reply any
	var err error

	if cwc, ok := t.conn.(redis.ConnWithContext); ok {
		reply, err = cwc.ReceiveContext(ctx)
	} else {
		reply, err = t.conn.Receive()
	}

	if rerr, ok := err.(redis.Error); ok {
		return protocol.Message{}, errors.NewRequestError(rerr.Error())
	}

	values, err := redis.Values(reply, err)
	if err != nil {
		return protocol.Message{}, err
	}

	if len(values) != 2 {
		return protocol.Message{}, errors.NewProtocolError(fmt.Sprintf("expected a reply of 2 elements, got %d", len(values)))
	}

	msgType, err := redis.String(values[0], nil)
	if err != nil {
		return protocol.Message{}, errors.NewProtocolError("reply type is not a string")
	}

	body, err := redis.Bytes(values[1], nil)
	if err != nil {
		return protocol.Message{}, errors.NewProtocolError("reply body is not a bulk string")
	}

	return protocol.NewMessage(msgType, body), nil
}

func (t *respTransport) close() error {
	return t.conn.Close()
}
