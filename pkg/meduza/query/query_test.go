package query

import (
	"errors"
	"testing"

	mdzerrors "github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/matryer/is"
)

func TestFilterOnSamePropertyReplacesEarlierFilter(t *testing.T) {
	is := is.New(t)

	q := NewGetQuery("Users").
		Filter("name", EQ, "dvir").
		Filter("name", IN, "alice", "bob")

	is.Equal(len(q.Filters), 1) // same property must collapse into one filter
	is.Equal(q.Filters["name"].Op, IN)
	is.Equal(q.Filters["name"].Values, []any{"alice", "bob"})
}

func TestFiltersOnDifferentPropertiesAreBothKept(t *testing.T) {
	is := is.New(t)

	fs := Filters(Equals("name", "dvir"), Equals("email", "dvir@x.com"))

	is.Equal(fs.Len(), 2)
	is.Equal(fs["name"].Values[0], "dvir")
	is.Equal(fs["email"].Values[0], "dvir@x.com")
}

func TestFiltersLastWriteWins(t *testing.T) {
	is := is.New(t)

	fs := Filters(GreaterThan("score", 10), LessThan("score", 5))

	is.Equal(fs.Len(), 1)
	is.Equal(fs["score"].Op, LT)
}

func TestAllFilterHasNoValues(t *testing.T) {
	is := is.New(t)

	f := All("id")
	is.Equal(f.Op, ALL)
	is.Equal(len(f.Values), 0)
	is.True(f.Values != nil) // encoded as an empty array, not null
}

func TestPagingValidation(t *testing.T) {
	is := is.New(t)

	_, err := NewPaging(-1, 10)
	is.True(errors.Is(err, mdzerrors.ErrInvalidQuery)) // negative offset

	_, err = NewPaging(0, 0)
	is.True(errors.Is(err, mdzerrors.ErrInvalidQuery)) // zero limit

	_, err = NewPaging(0, -3)
	is.True(errors.Is(err, mdzerrors.ErrInvalidQuery)) // negative limit

	_, err = NewPaging(10, 10)
	is.True(errors.Is(err, mdzerrors.ErrInvalidQuery)) // offset not below limit

	p, err := NewPaging(0, 1)
	is.NoErr(err)
	is.Equal(p, Paging{Offset: 0, Limit: 1})
}

func TestDefaultPaging(t *testing.T) {
	is := is.New(t)

	q := NewGetQuery("Users")
	is.Equal(q.Paging.Offset, 0)
	is.Equal(q.Paging.Limit, DefaultLimit)
}

func TestInvalidPageIsReportedByValidate(t *testing.T) {
	is := is.New(t)

	q := NewGetQuery("Users").Page(5, 2)

	is.Equal(q.Paging, DefaultPaging()) // paging left untouched
	is.True(errors.Is(q.Validate(), mdzerrors.ErrInvalidQuery))
}

func TestLimitIsPageFromZero(t *testing.T) {
	is := is.New(t)

	q := NewGetQuery("Users").Limit(7)
	is.NoErr(q.Validate())
	is.Equal(q.Paging, Paging{Offset: 0, Limit: 7})
}

func TestBuilderMutatesInPlace(t *testing.T) {
	is := is.New(t)

	q := NewGetQuery("Users")
	same := q.Filter("name", EQ, "dvir").OrderBy("name", false)

	is.True(same == q)
	is.Equal(len(q.Filters), 1)
	is.Equal(*q.Order, Ordering{By: "name", Asc: false})
}

func TestNewChangeOnlyAllowsSetAndIncrement(t *testing.T) {
	is := is.New(t)

	c, err := NewChange("score", OpIncrement, 3)
	is.NoErr(err)
	is.Equal(c, Increment("score", 3))

	_, err = NewChange("tags", OpSetAdd, "x")
	is.True(errors.Is(err, mdzerrors.ErrInvalidQuery))
}

func TestChangeFactories(t *testing.T) {
	is := is.New(t)

	is.Equal(SetAdd("tags", "a", "b").Value, []any{"a", "b"})
	is.Equal(MapSet("attrs", "color", "red").Value, map[string]any{"color": "red"})
	is.Equal(Expire(30).Op, OpExpire)
	is.Equal(Delete("name").Op, OpDelete)
}

func TestEntityExpireIgnoresNonPositiveTTL(t *testing.T) {
	is := is.New(t)

	e := NewEntity("", nil)
	e.Expire(-1)
	is.Equal(e.TTL, 0.0)

	e.Expire(2.5)
	is.Equal(e.TTL, 2.5)
}

func TestUpdateQueryRequiresChanges(t *testing.T) {
	is := is.New(t)

	q := NewUpdateQuery("Users", Filters(Equals("id", "1")))
	is.True(errors.Is(q.Validate(), mdzerrors.ErrInvalidQuery))

	q.Set("name", "dvir")
	is.NoErr(q.Validate())
}

func TestMissingTableIsInvalid(t *testing.T) {
	is := is.New(t)

	is.True(errors.Is(NewPutQuery("").Validate(), mdzerrors.ErrInvalidQuery))
	is.NoErr(NewPingQuery().Validate())
}
