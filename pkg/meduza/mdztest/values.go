package mdztest

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	setSentinel  string = "__MDZS__"
	listSentinel string = "__MDZL__"
	nilValue     string = "{NIL}"
)

// normalize folds the different shapes a decoded bson value can take into
// int64, float64, string, bool, []any and map[string]any
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint64:
		return int64(t)
	case primitive.DateTime:
		return int64(t)
	case primitive.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	case primitive.D:
		return normalizeMap(map[string]any(t.Map()))
	case primitive.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case primitive.Binary:
		return string(t.Data)
	case []byte:
		return string(t)
	}
	return v
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i := range s {
		out[i] = normalize(s[i])
	}
	return out
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// compare orders two normalized scalars. The second return value is false
// when the values are not comparable.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp(x, y), true
		case float64:
			return cmp(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmp(x, float64(y)), true
		case float64:
			return cmp(x, y), true
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			if x == y {
				return 0, true
			}
			if !x {
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func cmp[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// members returns the elements of a set or list property, without its sentinel
func members(v any) ([]any, string) {
	s, ok := v.([]any)
	if !ok || len(s) == 0 {
		return nil, ""
	}

	if marker, ok := s[0].(string); ok && (marker == setSentinel || marker == listSentinel) {
		return s[1:], marker
	}

	return s, ""
}

func contains(elements []any, v any) bool {
	for _, e := range elements {
		if equal(e, v) {
			return true
		}
	}
	return false
}

func sortedSet(elements []any) []any {
	sort.SliceStable(elements, func(i, j int) bool {
		if c, ok := compare(elements[i], elements[j]); ok {
			return c < 0
		}
		return fmt.Sprint(elements[i]) < fmt.Sprint(elements[j])
	})
	return append([]any{setSentinel}, elements...)
}
