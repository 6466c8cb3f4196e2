package query

// Condition is the comparison a filter applies to a property
type Condition string

const (
	EQ  Condition = "="
	GT  Condition = ">"
	LT  Condition = "<"
	IN  Condition = "IN"
	ALL Condition = "ALL"
)

// Filter selects entities where Property satisfies Op against Values
type Filter struct {
	Property string    `bson:"property"`
	Op       Condition `bson:"op"`
	Values   []any     `bson:"values"`
}

func NewFilter(property string, op Condition, values ...any) Filter {
	if values == nil {
		values = []any{}
	}

	return Filter{
		Property: property,
		Op:       op,
		Values:   values,
	}
}

func Equals(property string, value any) Filter {
	return NewFilter(property, EQ, value)
}

func GreaterThan(property string, value any) Filter {
	return NewFilter(property, GT, value)
}

func LessThan(property string, value any) Filter {
	return NewFilter(property, LT, value)
}

func In(property string, values ...any) Filter {
	return NewFilter(property, IN, values...)
}

// All matches every entity. It is normally built against the primary key of a model.
func All(property string) Filter {
	return NewFilter(property, ALL)
}

// FilterSet holds at most one filter per property.
//
// Adding a filter for a property that is already present REPLACES the earlier
// filter, it is not combined with it. Two filters on different properties are
// both kept and the server applies them as a conjunction.
type FilterSet map[string]Filter

// Filters merges the given filters into a new set, last write wins per property
func Filters(filters ...Filter) FilterSet {
	fs := FilterSet{}
	return fs.And(filters...)
}

// And adds filters to the set in place and returns the same set
func (fs FilterSet) And(filters ...Filter) FilterSet {
	for _, f := range filters {
		fs[f.Property] = f
	}
	return fs
}

func (fs FilterSet) Len() int {
	return len(fs)
}
