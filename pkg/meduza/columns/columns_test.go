package columns

import (
	"errors"
	"testing"
	"time"

	mdzerrors "github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/matryer/is"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func roundTrip(t *testing.T, c Codec, native any) (any, any) {
	t.Helper()
	is := is.New(t)

	wire, err := c.Encode(native)
	is.NoErr(err)

	decoded, err := c.Decode(wire)
	is.NoErr(err)

	rewire, err := c.Encode(decoded)
	is.NoErr(err)
	is.Equal(rewire, wire) // encode(decode(w)) == w

	return wire, decoded
}

func TestScalarRoundTrips(t *testing.T) {
	is := is.New(t)

	cases := []struct {
		codec  Codec
		native any
	}{
		{Key{}, "5f0c2a"},
		{Text{}, "hello wörld"},
		{Text{MaxLen: 5}, "short"},
		{Int{}, int64(-42)},
		{Uint{}, uint64(42)},
		{Float{}, 3.25},
		{Bool{}, true},
		{Bool{}, false},
		{Binary{}, []byte{0x00, 0xff, 0x10}},
	}

	for _, tc := range cases {
		_, decoded := roundTrip(t, tc.codec, tc.native)
		is.Equal(decoded, tc.native) // decode(encode(v)) == v
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	is := is.New(t)

	now := Now()
	_, decoded := roundTrip(t, Timestamp{}, now)

	is.True(decoded.(time.Time).Equal(now))
	is.Equal(decoded.(time.Time).Location(), time.UTC)
}

func TestTimestampDecodesEpochSeconds(t *testing.T) {
	is := is.New(t)

	v, err := Timestamp{}.Decode(1400000000.5)
	is.NoErr(err)
	is.True(v.(time.Time).Equal(time.Unix(1400000000, 500000000)))

	v, err = Timestamp{}.Decode(int64(1400000000))
	is.NoErr(err)
	is.True(v.(time.Time).Equal(time.Unix(1400000000, 0)))
}

func TestTimestampDecodesBsonDateTime(t *testing.T) {
	is := is.New(t)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 123000000, time.UTC)
	v, err := Timestamp{}.Decode(primitive.NewDateTimeFromTime(ts))
	is.NoErr(err)
	is.True(v.(time.Time).Equal(ts))
}

func TestMalformedTimestampIsAColumnValueError(t *testing.T) {
	is := is.New(t)

	_, err := Timestamp{}.Decode("yesterday-ish")
	is.True(errors.Is(err, mdzerrors.ErrColumnValue))

	_, err = Timestamp{}.Decode(map[string]any{})
	is.True(errors.Is(err, mdzerrors.ErrInvalidType))
}

func TestNilAndNILSentinelDecodeToNil(t *testing.T) {
	is := is.New(t)

	for _, c := range []Codec{Key{}, Text{}, Int{}, Uint{}, Float{}, Bool{}, Binary{}, Timestamp{}, Set{}, List{}, Map{}} {
		v, err := c.Decode(nil)
		is.NoErr(err)
		is.Equal(v, nil)

		v, err = c.Decode(NIL)
		is.NoErr(err)
		is.Equal(v, nil) // NIL is an explicit null
	}
}

func TestTextMaxLen(t *testing.T) {
	is := is.New(t)

	_, err := Text{MaxLen: 3}.Encode("four")
	is.True(errors.Is(err, mdzerrors.ErrColumnValue))

	v, err := Text{MaxLen: 4}.Encode("åäöü")
	is.NoErr(err) // length is counted in runes
	is.Equal(v, "åäöü")
}

func TestTextChoices(t *testing.T) {
	is := is.New(t)

	c := Text{Choices: []string{"admin", "user"}}

	_, err := c.Encode("guest")
	is.True(errors.Is(err, mdzerrors.ErrColumnValue))

	v, err := c.Encode("admin")
	is.NoErr(err)
	is.Equal(v, "admin")
}

func TestTextRejectsIncompatibleTypes(t *testing.T) {
	is := is.New(t)

	_, err := Text{}.Encode([]int{1, 2})
	is.True(errors.Is(err, mdzerrors.ErrInvalidType))
}

func TestBoolDecodesTruthyStrings(t *testing.T) {
	is := is.New(t)

	for _, s := range []any{"1", "true", "TRUE", " True ", 1, int64(7)} {
		v, err := Bool{}.Decode(s)
		is.NoErr(err)
		is.Equal(v, true)
	}

	for _, s := range []any{"0", "false", "yes", 0} {
		v, err := Bool{}.Decode(s)
		is.NoErr(err)
		is.Equal(v, false)
	}
}

func TestUintDecodesAbsoluteValue(t *testing.T) {
	is := is.New(t)

	v, err := Uint{}.Decode(int64(-17))
	is.NoErr(err)
	is.Equal(v, uint64(17))

	_, err = Uint{}.Encode(-1)
	is.True(errors.Is(err, mdzerrors.ErrColumnValue))

	_, err = Uint{}.Encode(uint64(1) << 63)
	is.True(errors.Is(err, mdzerrors.ErrColumnValue)) // does not fit the signed wire format
}

func TestIntParsesStrings(t *testing.T) {
	is := is.New(t)

	v, err := Int{}.Decode("123")
	is.NoErr(err)
	is.Equal(v, int64(123))

	_, err = Int{}.Decode("12x")
	is.True(errors.Is(err, mdzerrors.ErrColumnValue))
}

func TestEmptySetIsOnlyTheSentinel(t *testing.T) {
	is := is.New(t)

	w, err := Set{Of: Text{}}.Encode(NewValueSet())
	is.NoErr(err)
	is.Equal(w, []any{SetSentinel})

	v, err := Set{Of: Text{}}.Decode([]any{SetSentinel})
	is.NoErr(err)
	is.Equal(v.(ValueSet).Len(), 0)
}

func TestSetRoundTrip(t *testing.T) {
	is := is.New(t)

	s := NewValueSet("b", "a", "c")
	w, decoded := roundTrip(t, Set{Of: Text{}}, s)

	is.Equal(w, []any{SetSentinel, "a", "b", "c"}) // stable order after the marker
	is.True(decoded.(ValueSet).Equal(s))
}

func TestSetEncodesSlicesWithoutDuplicates(t *testing.T) {
	is := is.New(t)

	w, err := Set{Of: Int{}}.Encode([]int{3, 1, 3})
	is.NoErr(err)
	is.Equal(w, []any{SetSentinel, int64(1), int64(3)})
}

func TestListRoundTrip(t *testing.T) {
	is := is.New(t)

	w, decoded := roundTrip(t, List{Of: Int{}}, []any{int64(3), int64(1), int64(3)})

	is.Equal(w, []any{ListSentinel, int64(3), int64(1), int64(3)})
	is.Equal(decoded, []any{int64(3), int64(1), int64(3)})
}

func TestListDecodesBsonArrays(t *testing.T) {
	is := is.New(t)

	v, err := List{Of: Text{}}.Decode(primitive.A{ListSentinel, "x"})
	is.NoErr(err)
	is.Equal(v, []any{"x"})
}

func TestSentinelsAreDistinctAndFixed(t *testing.T) {
	is := is.New(t)

	is.Equal(SetSentinel, "__MDZS__")
	is.Equal(ListSentinel, "__MDZL__")

	_, err := Set{}.Decode([]any{ListSentinel, "a"})
	is.True(errors.Is(err, mdzerrors.ErrColumnValue)) // a list is not a set
}

func TestMalformedCompositesFail(t *testing.T) {
	is := is.New(t)

	_, err := Set{}.Decode("not a sequence")
	is.True(errors.Is(err, mdzerrors.ErrColumnValue))

	_, err = List{}.Decode([]any{})
	is.True(errors.Is(err, mdzerrors.ErrColumnValue)) // missing marker

	_, err = Map{}.Decode([]any{"a"})
	is.True(errors.Is(err, mdzerrors.ErrColumnValue))
}

func TestMapRoundTrip(t *testing.T) {
	is := is.New(t)

	m := map[string]any{"a": int64(1), "b": int64(2)}
	w, decoded := roundTrip(t, Map{Of: Int{}}, m)

	is.Equal(w, m)
	is.Equal(decoded, m)

	v, err := Map{Of: Int{}}.Decode(primitive.M{"a": int32(1)})
	is.NoErr(err)
	is.Equal(v, map[string]any{"a": int64(1)})
}

func TestColumnEncodeFallsBackToDefault(t *testing.T) {
	is := is.New(t)

	c := New("role", Text{}, DefaultsTo("user"))
	v, err := c.Encode(nil)
	is.NoErr(err)
	is.Equal(v, "user")

	calls := 0
	ts := New("created", Timestamp{}, DefaultsTo(func() any { calls++; return Now() }))
	v, err = ts.Encode(nil)
	is.NoErr(err)
	is.Equal(calls, 1) // producer called once per default
	_, ok := v.(time.Time)
	is.True(ok)

	plain := New("nick", Text{})
	v, err = plain.Encode(nil)
	is.NoErr(err)
	is.Equal(v, nil)
}

func TestColumnErrorsNameTheColumn(t *testing.T) {
	is := is.New(t)

	c := New("name", Text{MaxLen: 2})
	_, err := c.Encode("dvir")

	is.True(errors.Is(err, mdzerrors.ErrColumnValue))
	is.Equal(err.Error(), "column name: value too large, allowed 2, have 4")
}

func TestColumnFilterHelpersUseWireName(t *testing.T) {
	is := is.New(t)

	c := New("email", Text{}, Attribute("Email"))

	is.Equal(c.Eq("a@b.c"), query.Equals("email", "a@b.c"))
	is.Equal(c.In([]string{"a", "b"}).Values, []any{"a", "b"}) // a single slice is expanded
	is.Equal(c.In("a", "b").Values, []any{"a", "b"})
	is.Equal(c.Incr(2), query.Increment("email", 2))
}

func TestParseKind(t *testing.T) {
	is := is.New(t)

	k, ok := ParseKind("timestamp")
	is.True(ok)
	is.Equal(k, KindTimestamp)
	is.Equal(k.String(), "Timestamp")

	_, ok = ParseKind("Decimal")
	is.True(!ok)
}
