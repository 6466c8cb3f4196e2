package mdztest

import (
	"fmt"
	"time"

	"github.com/diwise/meduza/pkg/meduza/query"
)

func (s *Server) apply(r *record, c query.Change) error {
	switch c.Op {
	case query.OpSet:
		if str, ok := c.Value.(string); ok && str == nilValue {
			delete(r.props, c.Property)
			return nil
		}
		r.props[c.Property] = c.Value

	case query.OpDelete:
		delete(r.props, c.Property)

	case query.OpIncrement:
		return increment(r, c)

	case query.OpSetAdd, query.OpSetDelete:
		values, ok := normalize(c.Value).([]any)
		if !ok {
			return fmt.Errorf("%s on %s expects a list of values, got %T", c.Op, c.Property, c.Value)
		}

		current, _ := members(normalize(r.props[c.Property]))
		next := []any{}

		if c.Op == query.OpSetAdd {
			next = append(next, current...)
			for _, v := range values {
				if !contains(next, v) {
					next = append(next, v)
				}
			}
		} else {
			for _, v := range current {
				if !contains(values, v) {
					next = append(next, v)
				}
			}
		}

		r.props[c.Property] = sortedSet(next)

	case query.OpMapSet:
		entries, ok := normalize(c.Value).(map[string]any)
		if !ok {
			return fmt.Errorf("%s on %s expects a map, got %T", c.Op, c.Property, c.Value)
		}

		m, _ := normalize(r.props[c.Property]).(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		for k, v := range entries {
			m[k] = v
		}
		r.props[c.Property] = m

	case query.OpMapDelete:
		keys, ok := normalize(c.Value).([]any)
		if !ok {
			return fmt.Errorf("%s on %s expects a list of keys, got %T", c.Op, c.Property, c.Value)
		}

		if m, ok := normalize(r.props[c.Property]).(map[string]any); ok {
			for _, k := range keys {
				delete(m, fmt.Sprint(k))
			}
			r.props[c.Property] = m
		}

	case query.OpExpire:
		ttl, ok := normalize(c.Value).(float64)
		if !ok {
			if i, isInt := normalize(c.Value).(int64); isInt {
				ttl, ok = float64(i), true
			}
		}
		if !ok {
			return fmt.Errorf("%s expects a number of seconds, got %T", c.Op, c.Value)
		}
		r.expires = s.now().Add(time.Duration(ttl * float64(time.Second)))

	default:
		return fmt.Errorf("unsupported change op %q", c.Op)
	}

	return nil
}

func increment(r *record, c query.Change) error {
	delta := normalize(c.Value)
	current := normalize(r.props[c.Property])

	if current == nil {
		current = int64(0)
	}

	switch d := delta.(type) {
	case int64:
		switch v := current.(type) {
		case int64:
			r.props[c.Property] = v + d
			return nil
		case float64:
			r.props[c.Property] = v + float64(d)
			return nil
		}
	case float64:
		switch v := current.(type) {
		case int64:
			r.props[c.Property] = float64(v) + d
			return nil
		case float64:
			r.props[c.Property] = v + d
			return nil
		}
	}

	return fmt.Errorf("cannot increment %s (%T) by %T", c.Property, r.props[c.Property], c.Value)
}
