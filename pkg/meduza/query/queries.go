package query

import (
	"github.com/diwise/meduza/pkg/meduza/errors"
)

// The builder methods on the query types mutate the receiver in place and
// return it, so chained calls and the variable holding the query refer to the same query.

// GetQuery selects entities from a table
type GetQuery struct {
	Table      string    `bson:"table"`
	Properties []string  `bson:"properties"`
	Filters    FilterSet `bson:"filters"`
	Order      *Ordering `bson:"order"`
	Paging     Paging    `bson:"paging"`

	err error
}

func NewGetQuery(table string, properties ...string) *GetQuery {
	if properties == nil {
		properties = []string{}
	}

	return &GetQuery{
		Table:      table,
		Properties: properties,
		Filters:    FilterSet{},
		Paging:     DefaultPaging(),
	}
}

// Filter adds (or replaces) the filter for prop
func (q *GetQuery) Filter(prop string, op Condition, values ...any) *GetQuery {
	q.Filters.And(NewFilter(prop, op, values...))
	return q
}

func (q *GetQuery) Where(filters ...Filter) *GetQuery {
	q.Filters.And(filters...)
	return q
}

// All adds a filter matching every entity, keyed on the given (primary) property
func (q *GetQuery) All(property string) *GetQuery {
	q.Filters.And(All(property))
	return q
}

func (q *GetQuery) OrderBy(property string, asc bool) *GetQuery {
	q.Order = &Ordering{By: property, Asc: asc}
	return q
}

// Limit is short for Page(0, limit)
func (q *GetQuery) Limit(limit int) *GetQuery {
	return q.Page(0, limit)
}

// Page sets the paging window. An invalid window leaves the current paging in
// place and is reported by Err and Validate.
func (q *GetQuery) Page(offset, limit int) *GetQuery {
	p, err := NewPaging(offset, limit)
	if err != nil {
		if q.err == nil {
			q.err = err
		}
		return q
	}

	q.Paging = p
	return q
}

func (q *GetQuery) Err() error {
	return q.err
}

func (q *GetQuery) Validate() error {
	if q.err != nil {
		return q.err
	}
	return validateTable(q.Table)
}

// PutQuery inserts or replaces a batch of entities. Entities with an empty id are inserts.
type PutQuery struct {
	Table    string   `bson:"table"`
	Entities []Entity `bson:"entities"`
}

func NewPutQuery(table string, entities ...Entity) *PutQuery {
	if entities == nil {
		entities = []Entity{}
	}
	return &PutQuery{Table: table, Entities: entities}
}

func (q *PutQuery) Add(e Entity) *PutQuery {
	q.Entities = append(q.Entities, e)
	return q
}

func (q *PutQuery) Validate() error {
	return validateTable(q.Table)
}

// DelQuery deletes every entity matching its filters
type DelQuery struct {
	Table   string    `bson:"table"`
	Filters FilterSet `bson:"filters"`
}

func NewDelQuery(table string, filters ...Filter) *DelQuery {
	return &DelQuery{Table: table, Filters: Filters(filters...)}
}

func (q *DelQuery) Filter(prop string, op Condition, values ...any) *DelQuery {
	q.Filters.And(NewFilter(prop, op, values...))
	return q
}

func (q *DelQuery) Validate() error {
	return validateTable(q.Table)
}

// UpdateQuery applies a list of changes to every entity matching its filters
type UpdateQuery struct {
	Table   string    `bson:"table"`
	Filters FilterSet `bson:"filters"`
	Changes []Change  `bson:"changes"`
}

func NewUpdateQuery(table string, filters FilterSet, changes ...Change) *UpdateQuery {
	if filters == nil {
		filters = FilterSet{}
	}
	if changes == nil {
		changes = []Change{}
	}
	return &UpdateQuery{Table: table, Filters: filters, Changes: changes}
}

func (q *UpdateQuery) Filter(prop string, op Condition, values ...any) *UpdateQuery {
	q.Filters.And(NewFilter(prop, op, values...))
	return q
}

// Set appends a SET change of prop
func (q *UpdateQuery) Set(prop string, value any) *UpdateQuery {
	q.Changes = append(q.Changes, Set(prop, value))
	return q
}

func (q *UpdateQuery) Add(changes ...Change) *UpdateQuery {
	q.Changes = append(q.Changes, changes...)
	return q
}

func (q *UpdateQuery) Validate() error {
	if err := validateTable(q.Table); err != nil {
		return err
	}
	if len(q.Changes) == 0 {
		return errors.NewInvalidQueryError("update query without changes")
	}
	return nil
}

type PingQuery struct{}

func NewPingQuery() *PingQuery {
	return &PingQuery{}
}

func (q *PingQuery) Validate() error {
	return nil
}

func validateTable(table string) error {
	if table == "" {
		return errors.NewInvalidQueryError("missing table name")
	}
	return nil
}
