package columns

import (
	"fmt"
	"time"

	"github.com/diwise/meduza/pkg/meduza/query"
)

// Column describes one field of a model
type Column struct {
	Name      string // property name on the wire
	ModelName string // attribute name in the model
	Primary   bool
	Required  bool
	Codec     Codec

	def        any
	hasDefault bool
}

type Option func(*Column)

func AsPrimary() Option {
	return func(c *Column) {
		c.Primary = true
	}
}

func AsRequired() Option {
	return func(c *Column) {
		c.Required = true
	}
}

// DefaultsTo sets a default value. A func() any is called each time a default is needed.
func DefaultsTo(value any) Option {
	return func(c *Column) {
		c.def = value
		c.hasDefault = true
	}
}

func Attribute(modelName string) Option {
	return func(c *Column) {
		c.ModelName = modelName
	}
}

func New(name string, codec Codec, options ...Option) Column {
	c := Column{
		Name:      name,
		ModelName: name,
		Codec:     elementCodec(codec),
	}

	for _, option := range options {
		option(&c)
	}

	return c
}

func (c Column) Kind() Kind {
	return c.Codec.Kind()
}

func (c Column) HasDefault() bool {
	return c.hasDefault
}

func (c Column) DefaultValue() any {
	switch producer := c.def.(type) {
	case func() any:
		return producer()
	case func() time.Time:
		return producer()
	}
	return c.def
}

// Encode falls back to the default value when value is nil
func (c Column) Encode(value any) (any, error) {
	if isNil(value) {
		if !c.hasDefault {
			return nil, nil
		}
		value = c.DefaultValue()
	}

	w, err := c.Codec.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.Name, err)
	}
	return w, nil
}

func (c Column) Decode(value any) (any, error) {
	v, err := c.Codec.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.Name, err)
	}
	return v, nil
}

func (c Column) Eq(value any) query.Filter {
	return query.Equals(c.Name, value)
}

func (c Column) Gt(value any) query.Filter {
	return query.GreaterThan(c.Name, value)
}

func (c Column) Lt(value any) query.Filter {
	return query.LessThan(c.Name, value)
}

// In accepts either the values or a single slice holding them
func (c Column) In(values ...any) query.Filter {
	if len(values) == 1 {
		if seq, ok := asSequence(values[0]); ok {
			values = seq
		}
	}
	return query.In(c.Name, values...)
}

func (c Column) All() query.Filter {
	return query.All(c.Name)
}

func (c Column) Set(value any) query.Change {
	return query.Set(c.Name, value)
}

func (c Column) Incr(delta any) query.Change {
	return query.Increment(c.Name, delta)
}

func (c Column) Add(values ...any) query.Change {
	return query.SetAdd(c.Name, values...)
}

func (c Column) Remove(values ...any) query.Change {
	return query.SetDelete(c.Name, values...)
}

func (c Column) MapSet(key string, value any) query.Change {
	return query.MapSet(c.Name, key, value)
}

func (c Column) MapDelete(keys ...string) query.Change {
	return query.MapDelete(c.Name, keys...)
}
