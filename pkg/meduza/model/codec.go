package model

import (
	"context"
	"fmt"
	"reflect"

	"github.com/diwise/meduza/pkg/meduza/columns"
	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// Encode converts a model instance into an entity.
//
// A field is absent when it holds a nil pointer, slice or map, or the zero
// value of a scalar type. Use a pointer field to send an explicit zero.
// Absent required columns fail, other absent columns get their default or are
// left out of the entity entirely.
func Encode(obj any) (query.Entity, error) {
	d, err := Register(obj)
	if err != nil {
		return query.Entity{}, err
	}
	return d.Encode(obj)
}

func (d *Descriptor) Encode(obj any) (query.Entity, error) {
	rv, err := d.structValue(obj, false)
	if err != nil {
		return query.Entity{}, err
	}

	entity := query.NewEntity("", nil)

	if id, ok := fieldValue(rv.FieldByIndex(d.fields[d.primary])); ok {
		w, err := d.Primary().Encode(id)
		if err != nil {
			return query.Entity{}, err
		}
		if w != nil {
			entity.ID = w.(string)
		}
	}

	for _, name := range d.order {
		if name == d.primary {
			continue
		}

		col := d.columns[name]
		v, ok := fieldValue(rv.FieldByIndex(d.fields[name]))

		if !ok {
			if col.Required {
				return query.Entity{}, errors.NewColumnValueError(fmt.Sprintf("required column %s has no value", name))
			}
			if !col.HasDefault() {
				continue
			}
			v = nil
		}

		w, err := col.Encode(v)
		if err != nil {
			return query.Entity{}, err
		}

		if w != nil {
			entity.Properties[name] = w
		}
	}

	return entity, nil
}

// Decode fills dst, a pointer to a model instance, from an entity. Properties
// that the model has no column for are logged and skipped.
func Decode(ctx context.Context, entity query.Entity, dst any) error {
	d, err := Register(dst)
	if err != nil {
		return err
	}
	return d.Decode(ctx, entity, dst)
}

// DecodeAs returns a new instance of T decoded from an entity
func DecodeAs[T any](ctx context.Context, entity query.Entity) (*T, error) {
	obj := new(T)
	if err := Decode(ctx, entity, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (d *Descriptor) Decode(ctx context.Context, entity query.Entity, dst any) error {
	rv, err := d.structValue(dst, true)
	if err != nil {
		return err
	}

	if err := d.setPrimary(rv, entity.ID); err != nil {
		return err
	}

	for name, value := range entity.Properties {
		if name == d.primary {
			continue
		}

		col, ok := d.columns[name]
		if !ok {
			logging.GetFromContext(ctx).Warn("could not map property to model, not in column table", "property", name, "table", d.Table())
			continue
		}

		native, err := col.Decode(value)
		if err != nil {
			return err
		}

		if err := assign(rv.FieldByIndex(d.fields[name]), native); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
	}

	return nil
}

// SetPrimary sets the primary key of a model instance
func SetPrimary(obj any, id string) error {
	d, err := Register(obj)
	if err != nil {
		return err
	}

	rv, err := d.structValue(obj, true)
	if err != nil {
		return err
	}

	return d.setPrimary(rv, id)
}

func (d *Descriptor) setPrimary(rv reflect.Value, id string) error {
	native, err := d.Primary().Decode(id)
	if err != nil {
		return err
	}
	return assign(rv.FieldByIndex(d.fields[d.primary]), native)
}

// PrimaryValue returns the primary key of a model instance, empty until it has been set
func PrimaryValue(obj any) string {
	d, err := Register(obj)
	if err != nil {
		return ""
	}

	rv, err := d.structValue(obj, false)
	if err != nil {
		return ""
	}

	return rv.FieldByIndex(d.fields[d.primary]).String()
}

// Value returns the value of the column named by attribute or wire name. The
// second result is false when the column does not exist or holds no value.
func Value(obj any, name string) (any, bool) {
	d, err := Register(obj)
	if err != nil {
		return nil, false
	}

	col, ok := d.Column(name)
	if !ok {
		return nil, false
	}

	rv, err := d.structValue(obj, false)
	if err != nil {
		return nil, false
	}

	return fieldValue(rv.FieldByIndex(d.fields[col.Name]))
}

func IsSet(obj any, name string) bool {
	_, ok := Value(obj, name)
	return ok
}

func (d *Descriptor) structValue(obj any, settable bool) (reflect.Value, error) {
	rv := reflect.ValueOf(obj)

	if settable && (rv.Kind() != reflect.Pointer || rv.IsNil()) {
		return reflect.Value{}, errors.NewModelError(errors.ErrNotAModel, fmt.Sprintf("expected a non nil *%s, got %T", d.typ.Name(), obj))
	}

	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, errors.NewModelError(errors.ErrNotAModel, fmt.Sprintf("nil %T", obj))
		}
		rv = rv.Elem()
	}

	if rv.Type() != d.typ {
		return reflect.Value{}, errors.NewModelError(errors.ErrNotAModel, fmt.Sprintf("expected %s, got %T", d.typ, obj))
	}

	return rv, nil
}

func fieldValue(fv reflect.Value) (any, bool) {
	switch fv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if fv.IsNil() {
			return nil, false
		}
		return fv.Elem().Interface(), true
	case reflect.Map, reflect.Slice:
		if fv.IsNil() {
			return nil, false
		}
		return fv.Interface(), true
	}

	if fv.IsZero() {
		return nil, false
	}

	return fv.Interface(), true
}

// assign stores a decoded native value in a field, converting between the
// canonical column types and the declared Go type of the field
func assign(fv reflect.Value, native any) error {
	t := fv.Type()

	if native == nil {
		fv.Set(reflect.Zero(t))
		return nil
	}

	if t.Kind() == reflect.Pointer {
		p := reflect.New(t.Elem())
		if err := assign(p.Elem(), native); err != nil {
			return err
		}
		fv.Set(p)
		return nil
	}

	nv := reflect.ValueOf(native)
	if nv.Type().AssignableTo(t) {
		fv.Set(nv)
		return nil
	}

	switch n := native.(type) {
	case columns.ValueSet:
		return assignElements(fv, n.Values())
	case []any:
		return assignElements(fv, n)
	case map[string]any:
		if t.Kind() != reflect.Map || t.Key().Kind() != reflect.String {
			break
		}
		m := reflect.MakeMapWithSize(t, len(n))
		for k, v := range n {
			ev := reflect.New(t.Elem()).Elem()
			if err := assign(ev, v); err != nil {
				return err
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		fv.Set(m)
		return nil
	}

	if convertible(nv, t) {
		fv.Set(nv.Convert(t))
		return nil
	}

	return errors.NewInvalidTypeError(t.String(), native)
}

// assignElements fills a slice, or the keys of a set-like map, from decoded elements
func assignElements(fv reflect.Value, elements []any) error {
	t := fv.Type()

	switch t.Kind() {
	case reflect.Slice:
		s := reflect.MakeSlice(t, 0, len(elements))
		for _, e := range elements {
			ev := reflect.New(t.Elem()).Elem()
			if err := assign(ev, e); err != nil {
				return err
			}
			s = reflect.Append(s, ev)
		}
		fv.Set(s)
		return nil

	case reflect.Map:
		m := reflect.MakeMapWithSize(t, len(elements))
		for _, e := range elements {
			kv := reflect.New(t.Key()).Elem()
			if err := assign(kv, e); err != nil {
				return err
			}
			m.SetMapIndex(kv, reflect.Zero(t.Elem()))
		}
		fv.Set(m)
		return nil
	}

	return errors.NewInvalidTypeError(t.String(), elements)
}

func convertible(v reflect.Value, t reflect.Type) bool {
	switch v.Kind() {
	case reflect.String:
		return t.Kind() == reflect.String
	case reflect.Bool:
		return t.Kind() == reflect.Bool
	case reflect.Int64:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return !reflect.New(t).Elem().OverflowInt(v.Int())
		}
	case reflect.Uint64:
		switch t.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return !reflect.New(t).Elem().OverflowUint(v.Uint())
		}
	case reflect.Float64:
		return t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
	case reflect.Slice:
		return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 && v.Type().Elem().Kind() == reflect.Uint8
	case reflect.Struct:
		return v.Type().ConvertibleTo(t)
	}
	return false
}
