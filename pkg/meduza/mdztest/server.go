// Package mdztest provides an in-memory meduza server for tests. It speaks the
// same message protocol as a real server, so sessions built on it exercise the
// whole encode, transport and decode path without a network.
package mdztest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/diwise/meduza/pkg/meduza/protocol"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/diwise/meduza/pkg/meduza/transport"
	"github.com/google/uuid"
)

type record struct {
	id      string
	props   map[string]any
	expires time.Time
}

type Server struct {
	mu sync.Mutex

	tables   map[string]map[string]*record
	primary  map[string]string
	schemas  map[string][]byte
	requests []protocol.Message

	acquired int
	released int
	failures int

	failNext    string
	failSending error

	now func() time.Time
}

type ServerOption func(*Server)

// Clock replaces time.Now for expiry checks
func Clock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

func NewServer(options ...ServerOption) *Server {
	s := &Server{
		tables:  map[string]map[string]*record{},
		primary: map[string]string{},
		schemas: map[string][]byte{},
		now:     time.Now,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

var _ transport.Connector = &Server{}

func (s *Server) Acquire(ctx context.Context) (transport.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.acquired++
	return &conn{srv: s}, nil
}

func (s *Server) Release(t transport.Transport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released++
	if err != nil {
		s.failures++
	}
}

// Stats returns the number of acquired and released transports, and how many
// of the releases reported an error
func (s *Server) Stats() (acquired, released, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.acquired, s.released, s.failures
}

// Requests returns the messages received so far
func (s *Server) Requests() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]protocol.Message{}, s.requests...)
}

// FailNext makes the next request fail with msg as the server error
func (s *Server) FailNext(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = msg
}

// BreakTransport makes every following send fail with err, until called with nil
func (s *Server) BreakTransport(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failSending = err
}

// Len returns the number of live entities in a table
func (s *Server) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.live(table))
}

// Entity returns a copy of the stored properties of an entity
func (s *Server) Entity(table, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.live(table)[id]
	if !ok {
		return nil, false
	}

	props := make(map[string]any, len(r.props))
	for k, v := range r.props {
		props[k] = v
	}
	return props, true
}

// Schema returns the last schema document deployed under name
func (s *Server) Schema(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.schemas[name]
	return b, ok
}

type conn struct {
	srv     *Server
	pending []protocol.Message
}

func (c *conn) SendMessage(ctx context.Context, msg protocol.Message) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	if c.srv.failSending != nil {
		return c.srv.failSending
	}

	c.srv.requests = append(c.srv.requests, msg)

	resp, err := c.srv.handle(msg)
	if err != nil {
		return err
	}

	reply, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}

	c.pending = append(c.pending, reply)
	return nil
}

func (c *conn) ReceiveMessage(ctx context.Context) (protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Message{}, err
	}

	if len(c.pending) == 0 {
		return protocol.Message{}, fmt.Errorf("no reply pending")
	}

	reply := c.pending[0]
	c.pending = c.pending[1:]
	return reply, nil
}

func (s *Server) handle(msg protocol.Message) (protocol.Response, error) {
	q, err := protocol.DecodeQuery(msg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	failure := s.failNext
	s.failNext = ""

	var resp protocol.Response

	switch q := q.(type) {
	case *query.GetQuery:
		r := &protocol.GetResponse{Entities: []query.Entity{}}
		if failure == "" {
			r.Entities, r.Total = s.get(q)
		} else {
			r.Header = protocol.Failed(failure)
		}
		resp = r
	case *query.PutQuery:
		r := &protocol.PutResponse{IDs: []string{}}
		if failure == "" {
			r.IDs = s.put(q)
		} else {
			r.Header = protocol.Failed(failure)
		}
		resp = r
	case *query.DelQuery:
		r := &protocol.DelResponse{}
		if failure == "" {
			r.Num = s.delete(q)
		} else {
			r.Header = protocol.Failed(failure)
		}
		resp = r
	case *query.UpdateQuery:
		r := &protocol.UpdateResponse{}
		if failure == "" {
			r.Num, err = s.update(q)
			if err != nil {
				r.Header = protocol.Failed(err.Error())
			}
		} else {
			r.Header = protocol.Failed(failure)
		}
		resp = r
	default:
		r := &protocol.PingResponse{}
		if failure != "" {
			r.Header = protocol.Failed(failure)
		}
		resp = r
	}

	setTime(resp, time.Since(start))

	return resp, nil
}

func setTime(resp protocol.Response, d time.Duration) {
	switch r := resp.(type) {
	case *protocol.GetResponse:
		r.Time = d.Seconds()
	case *protocol.PutResponse:
		r.Time = d.Seconds()
	case *protocol.DelResponse:
		r.Time = d.Seconds()
	case *protocol.UpdateResponse:
		r.Time = d.Seconds()
	case *protocol.PingResponse:
		r.Time = d.Seconds()
	}
}

// live drops expired entities and returns the remaining ones
func (s *Server) live(table string) map[string]*record {
	t, ok := s.tables[table]
	if !ok {
		t = map[string]*record{}
		s.tables[table] = t
	}

	now := s.now()
	for id, r := range t {
		if !r.expires.IsZero() && !now.Before(r.expires) {
			delete(t, id)
		}
	}

	return t
}

func (s *Server) put(q *query.PutQuery) []string {
	t := s.live(q.Table)
	ids := make([]string, 0, len(q.Entities))

	for _, e := range q.Entities {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}

		r := &record{id: id, props: map[string]any{}}
		for k, v := range e.Properties {
			r.props[k] = v
		}

		if e.TTL > 0 {
			r.expires = s.now().Add(time.Duration(e.TTL * float64(time.Second)))
		}

		t[id] = r
		ids = append(ids, id)
	}

	return ids
}

func (s *Server) get(q *query.GetQuery) ([]query.Entity, int) {
	matches := s.match(q.Table, q.Filters)

	if q.Order != nil {
		by := q.Order.By
		sort.SliceStable(matches, func(i, j int) bool {
			c, _ := compare(normalize(s.value(q.Table, matches[i], by)), normalize(s.value(q.Table, matches[j], by)))
			if q.Order.Asc {
				return c < 0
			}
			return c > 0
		})
	}

	total := len(matches)

	limit := q.Paging.Limit
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	limit = min(limit, total)

	offset := min(max(q.Paging.Offset, 0), limit)

	entities := make([]query.Entity, 0, limit-offset)
	for _, r := range matches[offset:limit] {
		entities = append(entities, project(r, q.Properties))
	}

	return entities, total
}

func project(r *record, properties []string) query.Entity {
	props := map[string]any{}

	if len(properties) == 0 {
		for k, v := range r.props {
			props[k] = v
		}
	} else {
		for _, k := range properties {
			if v, ok := r.props[k]; ok {
				props[k] = v
			}
		}
	}

	e := query.NewEntity(r.id, props)
	if !r.expires.IsZero() {
		e.Expire(time.Until(r.expires).Seconds())
	}
	return e
}

func (s *Server) delete(q *query.DelQuery) int {
	t := s.live(q.Table)
	matches := s.match(q.Table, q.Filters)

	for _, r := range matches {
		delete(t, r.id)
	}

	return len(matches)
}

func (s *Server) update(q *query.UpdateQuery) (int, error) {
	matches := s.match(q.Table, q.Filters)

	for _, r := range matches {
		for _, c := range q.Changes {
			if err := s.apply(r, c); err != nil {
				return 0, err
			}
		}
	}

	return len(matches), nil
}

// match returns the live entities of a table satisfying every filter, ordered by id
func (s *Server) match(table string, filters query.FilterSet) []*record {
	result := []*record{}

	for _, r := range s.live(table) {
		ok := true
		for _, f := range filters {
			if !s.matches(table, r, f) {
				ok = false
				break
			}
		}
		if ok {
			result = append(result, r)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].id < result[j].id })

	return result
}

// value reads a property of an entity. The primary key of the table is the entity id.
func (s *Server) value(table string, r *record, property string) any {
	if property == s.primaryOf(table) {
		return r.id
	}
	return r.props[property]
}

func (s *Server) primaryOf(table string) string {
	if p, ok := s.primary[table]; ok {
		return p
	}
	return "id"
}

func (s *Server) matches(table string, r *record, f query.Filter) bool {
	if f.Op == query.ALL {
		return true
	}

	if len(f.Values) == 0 {
		return false
	}

	v := normalize(s.value(table, r, f.Property))

	switch f.Op {
	case query.EQ:
		return equal(v, normalize(f.Values[0]))
	case query.IN:
		for _, candidate := range f.Values {
			if equal(v, normalize(candidate)) {
				return true
			}
		}
		return false
	case query.GT:
		c, ok := compare(v, normalize(f.Values[0]))
		return ok && c > 0
	case query.LT:
		c, ok := compare(v, normalize(f.Values[0]))
		return ok && c < 0
	}

	return false
}
