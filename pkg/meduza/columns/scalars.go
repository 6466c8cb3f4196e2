package columns

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/diwise/meduza/pkg/meduza/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// NIL is the wire value for an explicit null, as opposed to a missing property
	NIL string = "{NIL}"
)

// Codec translates between native Go values and wire values.
// Both directions return nil for nil or NIL input.
type Codec interface {
	Kind() Kind
	Encode(value any) (any, error)
	Decode(value any) (any, error)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == NIL {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}

type Key struct{}

func (Key) Kind() Kind { return KindKey }

func (Key) Encode(value any) (any, error) { return toText(value) }
func (Key) Decode(value any) (any, error) { return toText(value) }

// Text is a string column with an optional maximum length (in runes) and set of allowed values
type Text struct {
	MaxLen  int
	Choices []string
}

func (Text) Kind() Kind { return KindText }

func (t Text) Encode(value any) (any, error) {
	s, err := toText(value)
	if s == nil || err != nil {
		return s, err
	}
	if err := t.validate(s.(string)); err != nil {
		return nil, err
	}
	return s, nil
}

func (t Text) Decode(value any) (any, error) {
	s, err := toText(value)
	if s == nil || err != nil {
		return s, err
	}
	if err := t.checkLength(s.(string)); err != nil {
		return nil, err
	}
	return s, nil
}

func (t Text) checkLength(s string) error {
	if n := utf8.RuneCountInString(s); t.MaxLen > 0 && n > t.MaxLen {
		return errors.NewColumnValueError(fmt.Sprintf("value too large, allowed %d, have %d", t.MaxLen, n))
	}
	return nil
}

func (t Text) validate(s string) error {
	if err := t.checkLength(s); err != nil {
		return err
	}

	if len(t.Choices) > 0 {
		for _, c := range t.Choices {
			if c == s {
				return nil
			}
		}
		return errors.NewColumnValueError(fmt.Sprintf("%q not in choices %v", s, t.Choices))
	}

	return nil
}

func toText(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	switch v := deref(value).(type) {
	case string:
		if v == NIL {
			return nil, nil
		}
		return v, nil
	case []byte:
		return string(v), nil
	case primitive.Binary:
		return string(v.Data), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}

	return nil, errors.NewInvalidTypeError("text", value)
}

type Int struct{}

func (Int) Kind() Kind { return KindInt }

func (Int) Encode(value any) (any, error) { return toInt(value) }
func (Int) Decode(value any) (any, error) { return toInt(value) }

func toInt(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return nil, errors.NewColumnValueError(fmt.Sprintf("%d overflows int64", rv.Uint()))
		}
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
			return nil, errors.NewColumnValueError(fmt.Sprintf("%v is not a valid integer", f))
		}
		return int64(f), nil
	case reflect.String:
		n, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
		if err != nil {
			return nil, errors.NewColumnValueError(fmt.Sprintf("%q is not a valid integer", rv.String()))
		}
		return n, nil
	}

	return nil, errors.NewInvalidTypeError("integer", value)
}

// Uint is an unsigned integer column. The wire form is a signed 64 bit integer,
// so values above math.MaxInt64 cannot be encoded.
type Uint struct{}

func (Uint) Kind() Kind { return KindUint }

func (Uint) Encode(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return nil, errors.NewColumnValueError(fmt.Sprintf("%d does not fit the wire format", rv.Uint()))
		}
		return int64(rv.Uint()), nil
	}

	n, err := toInt(value)
	if n == nil || err != nil {
		return n, err
	}
	if n.(int64) < 0 {
		return nil, errors.NewColumnValueError(fmt.Sprintf("%d is negative", n.(int64)))
	}

	return n, nil
}

func (Uint) Decode(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	}

	n, err := toInt(value)
	if n == nil || err != nil {
		return n, err
	}

	i := n.(int64)
	if i < 0 {
		if i == math.MinInt64 {
			return uint64(math.MaxInt64) + 1, nil
		}
		i = -i
	}

	return uint64(i), nil
}

type Float struct{}

func (Float) Kind() Kind { return KindFloat }

func (Float) Encode(value any) (any, error) { return toFloat(value) }
func (Float) Decode(value any) (any, error) { return toFloat(value) }

func toFloat(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return nil, errors.NewColumnValueError(fmt.Sprintf("%q is not a valid float", rv.String()))
		}
		return f, nil
	}

	return nil, errors.NewInvalidTypeError("float", value)
}

// Bool accepts booleans, numbers (non zero is true) and the strings "1" and "true" in any case
type Bool struct{}

func (Bool) Kind() Kind { return KindBool }

func (Bool) Encode(value any) (any, error) { return toBool(value) }
func (Bool) Decode(value any) (any, error) { return toBool(value) }

func toBool(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	case reflect.String:
		s := strings.ToLower(strings.TrimSpace(rv.String()))
		return s == "1" || s == "true", nil
	}

	return nil, errors.NewInvalidTypeError("bool", value)
}

type Binary struct{}

func (Binary) Kind() Kind { return KindBinary }

func (Binary) Encode(value any) (any, error) { return toBytes(value) }
func (Binary) Decode(value any) (any, error) { return toBytes(value) }

func toBytes(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	switch v := deref(value).(type) {
	case []byte:
		return v, nil
	case primitive.Binary:
		return v.Data, nil
	case string:
		return []byte(v), nil
	}

	return nil, errors.NewInvalidTypeError("binary", value)
}

// Timestamp values are UTC instants with millisecond precision, which is what the wire format keeps
type Timestamp struct{}

func (Timestamp) Kind() Kind { return KindTimestamp }

func (Timestamp) Encode(value any) (any, error) { return toTime(value) }
func (Timestamp) Decode(value any) (any, error) { return toTime(value) }

// Now is the canonical current time, used as a default value producer
func Now() time.Time {
	return normalizeTime(time.Now())
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func toTime(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	switch v := deref(value).(type) {
	case time.Time:
		return normalizeTime(v), nil
	case primitive.DateTime:
		return normalizeTime(v.Time()), nil
	case primitive.Timestamp:
		return normalizeTime(time.Unix(int64(v.T), 0)), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, errors.NewColumnValueError(fmt.Sprintf("malformed timestamp %q", v))
		}
		return normalizeTime(t), nil
	}

	rv := reflect.ValueOf(deref(value))
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return normalizeTime(time.Unix(rv.Int(), 0)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return normalizeTime(time.Unix(int64(rv.Uint()), 0)), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.NewColumnValueError(fmt.Sprintf("malformed timestamp %v", f))
		}
		sec, frac := math.Modf(f)
		return normalizeTime(time.Unix(int64(sec), int64(math.Round(frac*1e9)))), nil
	}

	return nil, errors.NewInvalidTypeError("timestamp", value)
}
