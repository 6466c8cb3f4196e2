package meduza

import (
	"github.com/diwise/meduza/pkg/meduza/query"
)

// SelectOption modifies the get query built by Select
type SelectOption func(*query.GetQuery)

// Properties limits the properties loaded for each entity
func Properties(names ...string) SelectOption {
	return func(q *query.GetQuery) {
		q.Properties = append(q.Properties, names...)
	}
}

func OrderBy(property string, asc bool) SelectOption {
	return func(q *query.GetQuery) {
		q.OrderBy(property, asc)
	}
}

// Limit returns the first n entities. Invalid values fail the query before it is sent.
func Limit(n int) SelectOption {
	return func(q *query.GetQuery) {
		q.Limit(n)
	}
}

func Page(offset, limit int) SelectOption {
	return func(q *query.GetQuery) {
		q.Page(offset, limit)
	}
}

type Option func(*session)

// Debug logs every round trip when enabled is "true"
func Debug(enabled string) Option {
	return func(s *session) {
		s.debug = (enabled == "true")
	}
}

