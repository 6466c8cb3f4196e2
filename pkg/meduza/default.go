package meduza

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/diwise/meduza/pkg/meduza/protocol"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/diwise/meduza/pkg/meduza/transport"
)

var (
	ErrNoSession    = errors.New("no default session has been set up")
	ErrAlreadySetUp = errors.New("default session already set up")
)

var (
	mu             sync.RWMutex
	defaultSession Session
)

// Setup installs the process wide session used by the package level functions
func Setup(master, replica transport.Connector, options ...Option) error {
	mu.Lock()
	defer mu.Unlock()

	if defaultSession != nil {
		return ErrAlreadySetUp
	}

	defaultSession = NewSession(master, replica, options...)
	return nil
}

// Reset closes and removes the default session, if any
func Reset() error {
	mu.Lock()
	defer mu.Unlock()

	if defaultSession == nil {
		return nil
	}

	err := defaultSession.Close()
	defaultSession = nil
	return err
}

func Default() (Session, error) {
	mu.RLock()
	defer mu.RUnlock()

	if defaultSession == nil {
		return nil, ErrNoSession
	}

	return defaultSession, nil
}

func Select(ctx context.Context, dst any, filters query.FilterSet, options ...SelectOption) (int, error) {
	s, err := Default()
	if err != nil {
		return 0, err
	}
	return s.Select(ctx, dst, filters, options...)
}

func Get(ctx context.Context, dst any, ids ...string) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.Get(ctx, dst, ids...)
}

func Count(ctx context.Context, mdl any, filters ...query.Filter) (int, error) {
	s, err := Default()
	if err != nil {
		return 0, err
	}
	return s.Count(ctx, mdl, filters...)
}

func Put(ctx context.Context, objects ...any) ([]string, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	return s.Put(ctx, objects...)
}

func PutExpiring(ctx context.Context, ttl time.Duration, objects ...any) ([]string, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	return s.PutExpiring(ctx, ttl, objects...)
}

func Delete(ctx context.Context, mdl any, filters ...query.Filter) (int, error) {
	s, err := Default()
	if err != nil {
		return 0, err
	}
	return s.Delete(ctx, mdl, filters...)
}

func Update(ctx context.Context, mdl any, filters query.FilterSet, changes Changes, extra ...query.Change) (int, error) {
	s, err := Default()
	if err != nil {
		return 0, err
	}
	return s.Update(ctx, mdl, filters, changes, extra...)
}

func Ping(ctx context.Context) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

func Execute(ctx context.Context, q any) (protocol.Response, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, q)
}
