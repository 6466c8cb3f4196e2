package columns

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/diwise/meduza/pkg/meduza/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The first element of an encoded set or list tells the server what kind of
// sequence it holds. These literals are shared with the server and must never change.
const (
	SetSentinel  string = "__MDZS__"
	ListSentinel string = "__MDZL__"
)

// ValueSet is the native form of a Set column. Elements must be comparable.
type ValueSet map[any]struct{}

func NewValueSet(values ...any) ValueSet {
	s := make(ValueSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

func (s ValueSet) Add(v any)      { s[v] = struct{}{} }
func (s ValueSet) Has(v any) bool { _, ok := s[v]; return ok }
func (s ValueSet) Remove(v any)   { delete(s, v) }
func (s ValueSet) Len() int       { return len(s) }

func (s ValueSet) Equal(o ValueSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o.Has(k) {
			return false
		}
	}
	return true
}

// Values returns the elements in a stable order
func (s ValueSet) Values() []any {
	values := make([]any, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	sortValues(values)
	return values
}

func sortValues(values []any) {
	sort.SliceStable(values, func(i, j int) bool {
		return fmt.Sprint(values[i]) < fmt.Sprint(values[j])
	})
}

func elementCodec(c Codec) Codec {
	if c == nil {
		return Text{}
	}
	return c
}

// asSequence accepts the sequence types produced by callers and by the bson decoder
func asSequence(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case primitive.A:
		return []any(v), true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	seq := make([]any, rv.Len())
	for i := range seq {
		seq[i] = rv.Index(i).Interface()
	}
	return seq, true
}

// asMapping accepts string keyed maps, including bson documents
func asMapping(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case primitive.M:
		return map[string]any(v), true
	case primitive.D:
		return map[string]any(v.Map()), true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// Set is encoded as [SetSentinel, elements...]
type Set struct {
	Of Codec
}

func (Set) Kind() Kind { return KindSet }

func (s Set) Encode(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	var elements []any

	switch v := deref(value).(type) {
	case ValueSet:
		elements = v.Values()
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Map {
			for _, k := range rv.MapKeys() {
				elements = append(elements, k.Interface())
			}
		} else if seq, ok := asSequence(v); ok {
			elements = seq
		} else {
			return nil, errors.NewInvalidTypeError("set", value)
		}
	}

	codec := elementCodec(s.Of)
	seen := map[any]struct{}{}
	encoded := make([]any, 0, len(elements))

	for _, e := range elements {
		w, err := codec.Encode(e)
		if err != nil {
			return nil, err
		}
		if w == nil {
			continue
		}
		if reflect.TypeOf(w).Comparable() {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
		}
		encoded = append(encoded, w)
	}

	sortValues(encoded)

	return append([]any{SetSentinel}, encoded...), nil
}

func (s Set) Decode(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	elements, err := stripSentinel(value, SetSentinel, "set")
	if err != nil {
		return nil, err
	}

	codec := elementCodec(s.Of)
	set := make(ValueSet, len(elements))

	for _, e := range elements {
		v, err := codec.Decode(e)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if !reflect.TypeOf(v).Comparable() {
			return nil, errors.NewColumnValueError(fmt.Sprintf("set element of type %T is not comparable", v))
		}
		set.Add(v)
	}

	return set, nil
}

// List is encoded as [ListSentinel, elements...]
type List struct {
	Of Codec
}

func (List) Kind() Kind { return KindList }

func (l List) Encode(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	elements, ok := asSequence(deref(value))
	if !ok {
		return nil, errors.NewInvalidTypeError("list", value)
	}

	codec := elementCodec(l.Of)
	encoded := make([]any, 0, len(elements)+1)
	encoded = append(encoded, ListSentinel)

	for _, e := range elements {
		w, err := codec.Encode(e)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, w)
	}

	return encoded, nil
}

func (l List) Decode(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	elements, err := stripSentinel(value, ListSentinel, "list")
	if err != nil {
		return nil, err
	}

	codec := elementCodec(l.Of)
	list := make([]any, 0, len(elements))

	for _, e := range elements {
		v, err := codec.Decode(e)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}

	return list, nil
}

func stripSentinel(value any, sentinel, what string) ([]any, error) {
	seq, ok := asSequence(value)
	if !ok {
		return nil, errors.NewColumnValueError(fmt.Sprintf("expected an encoded %s, got %T", what, value))
	}

	if len(seq) == 0 {
		return nil, errors.NewColumnValueError(fmt.Sprintf("encoded %s is missing its type marker", what))
	}

	if marker, ok := seq[0].(string); !ok || marker != sentinel {
		return nil, errors.NewColumnValueError(fmt.Sprintf("encoded %s starts with %v, expected %s", what, seq[0], sentinel))
	}

	return seq[1:], nil
}

// Map is a string keyed mapping with element wise encoded values
type Map struct {
	Of Codec
}

func (Map) Kind() Kind { return KindMap }

func (m Map) Encode(value any) (any, error) {
	return m.transform(value, true)
}

func (m Map) Decode(value any) (any, error) {
	return m.transform(value, false)
}

func (m Map) transform(value any, encode bool) (any, error) {
	if isNil(value) {
		return nil, nil
	}

	src, ok := asMapping(deref(value))
	if !ok {
		if encode {
			return nil, errors.NewInvalidTypeError("map", value)
		}
		return nil, errors.NewColumnValueError(fmt.Sprintf("expected an encoded map, got %T", value))
	}

	codec := elementCodec(m.Of)
	dst := make(map[string]any, len(src))

	for k, v := range src {
		var err error
		if encode {
			dst[k], err = codec.Encode(v)
		} else {
			dst[k], err = codec.Decode(v)
		}
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", k, err)
		}
	}

	return dst, nil
}
