package meduza

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"time"

	"github.com/diwise/meduza/pkg/meduza/columns"
	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/model"
	"github.com/diwise/meduza/pkg/meduza/protocol"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/diwise/meduza/pkg/meduza/transport"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Session runs queries against a master and a replica server. Writes go to the
// master, reads to the replica. Each call is a single request/response round trip.
type Session interface {
	Select(ctx context.Context, dst any, filters query.FilterSet, options ...SelectOption) (int, error)
	Get(ctx context.Context, dst any, ids ...string) error
	Count(ctx context.Context, mdl any, filters ...query.Filter) (int, error)
	Put(ctx context.Context, objects ...any) ([]string, error)
	PutExpiring(ctx context.Context, ttl time.Duration, objects ...any) ([]string, error)
	Delete(ctx context.Context, mdl any, filters ...query.Filter) (int, error)
	Update(ctx context.Context, mdl any, filters query.FilterSet, changes Changes, extra ...query.Change) (int, error)
	Ping(ctx context.Context) error
	Execute(ctx context.Context, q any) (protocol.Response, error)
	Pipeline(ctx context.Context, queries ...any) ([]protocol.Response, error)
	Close() error
}

// Changes maps attribute or wire names to new values for Update. A plain value
// becomes a SET of the column. A query.Change value is sent as is, but must
// target the column named by its key unless the key is "_".
type Changes map[string]any

// AnyProperty is the Changes key for a change that is not tied to a column, such as an expiry
const AnyProperty string = "_"

const (
	TraceAttributeTable string = "meduza-table"
	TraceAttributeCount string = "meduza-count"
)

var tracer = otel.Tracer("meduza-client")

type session struct {
	master  transport.Connector
	replica transport.Connector
	debug   bool
}

// NewSession returns a session using master for writes and replica for reads.
// A nil replica means reads go to the master as well.
func NewSession(master, replica transport.Connector, options ...Option) Session {
	if replica == nil {
		replica = master
	}

	s := &session{
		master:  master,
		replica: replica,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

func (s *session) Select(ctx context.Context, dst any, filters query.FilterSet, options ...SelectOption) (total int, err error) {
	ctx, span := tracer.Start(ctx, "select")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, target, err := sliceTarget(dst)
	if err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.String(TraceAttributeTable, d.Table()))

	q := query.NewGetQuery(d.Table())
	if len(filters) == 0 {
		q.Where(d.All())
	}
	for _, f := range filters {
		q.Where(f)
	}

	for _, option := range options {
		option(q)
	}

	get, err := s.get(ctx, q)
	if err != nil {
		return 0, err
	}

	if err = load(ctx, d, get.Entities, target); err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.Int(TraceAttributeCount, len(get.Entities)))

	return get.Total, nil
}

// Get loads entities by primary key. dst is either a pointer to a slice of
// models, or a pointer to a single model when exactly one id is given.
func (s *session) Get(ctx context.Context, dst any, ids ...string) (err error) {
	ctx, span := tracer.Start(ctx, "get")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if len(ids) == 0 {
		return errors.NewInvalidQueryError("get without ids")
	}

	if d, regErr := model.Register(dst); regErr == nil && reflect.TypeOf(dst).Kind() == reflect.Pointer {
		if len(ids) != 1 {
			return errors.NewInvalidQueryError(fmt.Sprintf("expected one id when loading a single %s, got %d", d.TableName(), len(ids)))
		}

		span.SetAttributes(attribute.String(TraceAttributeTable, d.Table()))

		get, err := s.get(ctx, s.byIDs(d, ids))
		if err != nil {
			return err
		}

		if len(get.Entities) == 0 {
			return errors.NewNotFoundError(fmt.Sprintf("%s %s not found", d.TableName(), ids[0]))
		}

		return d.Decode(ctx, get.Entities[0], dst)
	}

	d, target, err := sliceTarget(dst)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String(TraceAttributeTable, d.Table()))

	get, err := s.get(ctx, s.byIDs(d, ids))
	if err != nil {
		return err
	}

	return load(ctx, d, get.Entities, target)
}

func (s *session) byIDs(d *model.Descriptor, ids []string) *query.GetQuery {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return query.NewGetQuery(d.Table()).Where(d.Primary().In(values...)).Limit(len(ids))
}

// Count returns the number of entities matching the filters, or all entities when no filters are given
func (s *session) Count(ctx context.Context, mdl any, filters ...query.Filter) (total int, err error) {
	ctx, span := tracer.Start(ctx, "count")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := model.Register(mdl)
	if err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.String(TraceAttributeTable, d.Table()))

	if len(filters) == 0 {
		filters = []query.Filter{d.All()}
	}

	q := query.NewGetQuery(d.Table(), d.Primary().Name).Where(filters...).Limit(1)

	get, err := s.get(ctx, q)
	if err != nil {
		return 0, err
	}

	return get.Total, nil
}

func (s *session) Put(ctx context.Context, objects ...any) ([]string, error) {
	return s.PutExpiring(ctx, 0, objects...)
}

// PutExpiring stores a batch of models of one type. The ttl is only applied
// when it is positive. Assigned ids are written back into the objects.
func (s *session) PutExpiring(ctx context.Context, ttl time.Duration, objects ...any) (ids []string, err error) {
	ctx, span := tracer.Start(ctx, "put")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if len(objects) == 0 {
		return []string{}, nil
	}

	d, err := model.Register(objects[0])
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String(TraceAttributeTable, d.Table()),
		attribute.Int(TraceAttributeCount, len(objects)),
	)

	first := reflect.TypeOf(objects[0])
	q := query.NewPutQuery(d.Table())

	for _, obj := range objects {
		if reflect.TypeOf(obj) != first {
			return nil, errors.NewModelError(errors.ErrHeterogeneousBatch, fmt.Sprintf("expected %s, got %T", first, obj))
		}

		e, err := d.Encode(obj)
		if err != nil {
			return nil, err
		}

		e.Expire(ttl.Seconds())
		q.Add(e)
	}

	resp, err := s.roundTrip(ctx, s.master, q)
	if err != nil {
		return nil, err
	}

	put := resp.(*protocol.PutResponse)

	if len(put.IDs) != len(objects) {
		return put.IDs, errors.NewProtocolError(fmt.Sprintf("put %d entities, got %d ids back", len(objects), len(put.IDs)))
	}

	for i, obj := range objects {
		if reflect.TypeOf(obj).Kind() == reflect.Pointer {
			if err = model.SetPrimary(obj, put.IDs[i]); err != nil {
				return put.IDs, err
			}
		}
	}

	return put.IDs, nil
}

// Delete removes the entities matching the filters. Pass the model's All filter to empty a table.
func (s *session) Delete(ctx context.Context, mdl any, filters ...query.Filter) (num int, err error) {
	ctx, span := tracer.Start(ctx, "delete")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := model.Register(mdl)
	if err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.String(TraceAttributeTable, d.Table()))

	if len(filters) == 0 {
		return 0, errors.NewInvalidQueryError("delete without filters")
	}

	resp, err := s.roundTrip(ctx, s.master, query.NewDelQuery(d.Table(), filters...))
	if err != nil {
		return 0, err
	}

	return resp.(*protocol.DelResponse).Num, nil
}

// Update applies changes to the entities matching filters and returns the number of updated entities.
// Keys of changes are processed in sorted order, followed by the extra changes.
func (s *session) Update(ctx context.Context, mdl any, filters query.FilterSet, changes Changes, extra ...query.Change) (num int, err error) {
	ctx, span := tracer.Start(ctx, "update")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	d, err := model.Register(mdl)
	if err != nil {
		return 0, err
	}

	span.SetAttributes(attribute.String(TraceAttributeTable, d.Table()))

	list, err := changeList(d, changes)
	if err != nil {
		return 0, err
	}
	list = append(list, extra...)

	if len(filters) == 0 {
		return 0, errors.NewInvalidQueryError("update without filters")
	}

	resp, err := s.roundTrip(ctx, s.master, query.NewUpdateQuery(d.Table(), filters, list...))
	if err != nil {
		return 0, err
	}

	return resp.(*protocol.UpdateResponse).Num, nil
}

func changeList(d *model.Descriptor, changes Changes) ([]query.Change, error) {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]query.Change, 0, len(keys))

	for _, k := range keys {
		v := changes[k]

		if c, ok := v.(query.Change); ok {
			if k != AnyProperty {
				col, found := d.Column(k)
				if !found || col.Name != c.Property {
					return nil, errors.NewModelError(errors.ErrMismatchingProperty, fmt.Sprintf("%s change of %q given for %q", c.Op, c.Property, k))
				}
			}
			list = append(list, c)
			continue
		}

		col, found := d.Column(k)
		if !found {
			return nil, errors.NewModelError(errors.ErrModel, fmt.Sprintf("%s has no column %q", d.TableName(), k))
		}

		w, err := col.Codec.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if w == nil {
			w = columns.NIL
		}

		list = append(list, col.Set(w))
	}

	return list, nil
}

// Ping checks the master and, when it is a different connector, the replica
func (s *session) Ping(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "ping")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if _, err = s.roundTrip(ctx, s.master, query.NewPingQuery()); err != nil {
		return err
	}

	if s.replica != s.master {
		_, err = s.roundTrip(ctx, s.replica, query.NewPingQuery())
	}

	return err
}

// Execute sends a prepared query. Get queries go to the replica, everything else to the master.
func (s *session) Execute(ctx context.Context, q any) (resp protocol.Response, err error) {
	ctx, span := tracer.Start(ctx, "execute")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	return s.roundTrip(ctx, s.route(q), q)
}

func (s *session) route(queries ...any) transport.Connector {
	for _, q := range queries {
		switch q.(type) {
		case *query.GetQuery, query.GetQuery:
			continue
		}
		return s.master
	}
	return s.replica
}

func (s *session) get(ctx context.Context, q *query.GetQuery) (*protocol.GetResponse, error) {
	resp, err := s.roundTrip(ctx, s.replica, q)
	if err != nil {
		return nil, err
	}
	return resp.(*protocol.GetResponse), nil
}

// roundTrip encodes q, sends it over a transport acquired from c and decodes
// the reply. The transport is released on every path.
func (s *session) roundTrip(ctx context.Context, c transport.Connector, q any) (resp protocol.Response, err error) {
	msg, err := protocol.Encode(q)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	t, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { c.Release(t, err) }()

	if err = t.SendMessage(ctx, msg); err != nil {
		return nil, err
	}

	resp, err = receive(ctx, t, msg.Type)
	if err != nil {
		return nil, err
	}

	if s.debug {
		logging.GetFromContext(ctx).Debug("round trip done", "type", msg.Type, "bytes", len(msg.Body), "server_time", resp.Duration(), "duration", time.Since(start))
	}

	if err = resp.Err(); err != nil {
		return nil, err
	}

	return resp, nil
}

func receive(ctx context.Context, t transport.Transport, requestType string) (protocol.Response, error) {
	reply, err := t.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}

	if expected, _ := protocol.ResponseType(requestType); reply.Type != expected {
		return nil, errors.NewProtocolError(fmt.Sprintf("expected %s in reply to %s, got %s", expected, requestType, reply.Type))
	}

	return protocol.Decode(reply)
}

// Pipeline sends all queries over one transport before reading any reply, for
// bulk work. The returned responses are in query order and server errors are
// reported per response through Err. Only encoding, transport and protocol
// failures are returned as the error.
func (s *session) Pipeline(ctx context.Context, queries ...any) (responses []protocol.Response, err error) {
	ctx, span := tracer.Start(ctx, "pipeline", trace.WithAttributes(attribute.Int(TraceAttributeCount, len(queries))))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	msgs := make([]protocol.Message, 0, len(queries))
	for _, q := range queries {
		msg, err := protocol.Encode(q)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	if len(msgs) == 0 {
		return []protocol.Response{}, nil
	}

	c := s.route(queries...)

	t, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { c.Release(t, err) }()

	for _, msg := range msgs {
		if err = t.SendMessage(ctx, msg); err != nil {
			return nil, err
		}
	}

	responses = make([]protocol.Response, 0, len(msgs))
	for _, msg := range msgs {
		resp, rerr := receive(ctx, t, msg.Type)
		if rerr != nil {
			err = rerr
			return responses, err
		}
		responses = append(responses, resp)
	}

	return responses, nil
}

// Close closes the connectors that can be closed
func (s *session) Close() error {
	var err error

	if c, ok := s.master.(io.Closer); ok {
		err = c.Close()
	}

	if s.replica != s.master {
		if c, ok := s.replica.(io.Closer); ok {
			if rerr := c.Close(); err == nil {
				err = rerr
			}
		}
	}

	return err
}

// sliceTarget checks that dst is a pointer to a slice of models, or of model pointers
func sliceTarget(dst any) (*model.Descriptor, reflect.Value, error) {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return nil, reflect.Value{}, errors.NewModelError(errors.ErrNotAModel, fmt.Sprintf("expected a pointer to a slice of models, got %T", dst))
	}

	d, err := model.Register(rv.Elem().Type().Elem())
	if err != nil {
		return nil, reflect.Value{}, err
	}

	return d, rv.Elem(), nil
}

func load(ctx context.Context, d *model.Descriptor, entities []query.Entity, target reflect.Value) error {
	elemType := target.Type().Elem()
	out := reflect.MakeSlice(target.Type(), 0, len(entities))

	for _, e := range entities {
		instance := d.New()
		if err := d.Decode(ctx, e, instance); err != nil {
			return err
		}

		obj := reflect.ValueOf(instance)

		if elemType.Kind() == reflect.Pointer {
			out = reflect.Append(out, obj)
		} else {
			out = reflect.Append(out, obj.Elem())
		}
	}

	target.Set(out)
	return nil
}
