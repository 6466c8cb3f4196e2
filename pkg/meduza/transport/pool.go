package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/protocol"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/gomodule/redigo/redis"
)

const (
	DefaultConnectTimeout time.Duration = 500 * time.Millisecond
	DefaultReadTimeout    time.Duration = 2 * time.Second
	DefaultIdleTimeout    time.Duration = 5 * time.Minute
	DefaultMaxIdle        int           = 5
)

type PoolOption func(*Pool)

func ConnectTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.connectTimeout = d
	}
}

func ReadTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.readTimeout = d
	}
}

func WriteTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.writeTimeout = d
	}
}

func MaxIdle(n int) PoolOption {
	return func(p *Pool) {
		p.maxIdle = n
	}
}

// MaxActive limits the number of open connections, callers wait for a free one when it is reached
func MaxActive(n int) PoolOption {
	return func(p *Pool) {
		p.maxActive = n
	}
}

func IdleTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.idleTimeout = d
	}
}

// Pool is a Connector backed by a redigo connection pool. Idle connections are
// checked with a meduza PING before they are handed out again.
type Pool struct {
	address        string
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	maxIdle        int
	maxActive      int

	pool *redis.Pool
}

func NewPool(address string, options ...PoolOption) *Pool {
	p := &Pool{
		address:        address,
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		writeTimeout:   DefaultReadTimeout,
		idleTimeout:    DefaultIdleTimeout,
		maxIdle:        DefaultMaxIdle,
	}

	for _, option := range options {
		option(p)
	}

	p.pool = &redis.Pool{
		MaxIdle:     p.maxIdle,
		MaxActive:   p.maxActive,
		Wait:        p.maxActive > 0,
		IdleTimeout: p.idleTimeout,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", p.address,
				redis.DialConnectTimeout(p.connectTimeout),
				redis.DialReadTimeout(p.readTimeout),
				redis.DialWriteTimeout(p.writeTimeout),
			)
		},
		TestOnBorrow: func(c redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			return Ping(context.Background(), NewRESPTransport(c))
		},
	}

	return p
}

func (p *Pool) Address() string {
	return p.address
}

func (p *Pool) Acquire(ctx context.Context) (Transport, error) {
	conn, err := p.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewRESPTransport(conn), nil
}

// Release returns the connection to the pool. Connections that failed on the
// network level carry a sticky error and are closed by the pool instead of reused.
func (p *Pool) Release(t Transport, err error) {
	if rt, ok := t.(*respTransport); ok {
		rt.close()
	}
}

func (p *Pool) Stats() redis.PoolStats {
	return p.pool.Stats()
}

func (p *Pool) Close() error {
	return p.pool.Close()
}

// Ping sends a PING message and expects a PONG without an error
func Ping(ctx context.Context, t Transport) error {
	msg, err := protocol.Encode(query.NewPingQuery())
	if err != nil {
		return err
	}

	if err = t.SendMessage(ctx, msg); err != nil {
		return err
	}

	reply, err := t.ReceiveMessage(ctx)
	if err != nil {
		return err
	}

	if reply.Type != protocol.TypePingResponse {
		return errors.NewProtocolError(fmt.Sprintf("expected %s, got %s", protocol.TypePingResponse, reply.Type))
	}

	resp, err := protocol.Decode(reply)
	if err != nil {
		return err
	}

	return resp.Err()
}
