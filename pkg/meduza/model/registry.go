package model

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/diwise/meduza/pkg/meduza/columns"
	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/query"
)

var (
	baseType     = reflect.TypeOf(Base{})
	timeType     = reflect.TypeOf(time.Time{})
	valueSetType = reflect.TypeOf(columns.ValueSet{})
)

// Descriptor is the column table of a registered model type. It is built once
// per type and never changes afterwards.
type Descriptor struct {
	typ     reflect.Type
	table   string
	schema  string
	primary string

	columns map[string]columns.Column
	fields  map[string][]int
	byAttr  map[string]string
	order   []string
}

type entry struct {
	once sync.Once
	desc *Descriptor
	err  error
}

var registry sync.Map

// Register returns the descriptor for the type of obj, which may be a struct,
// a pointer to a struct or a reflect.Type. The column table is computed on the
// first call for a type and cached for the lifetime of the process.
func Register(obj any) (*Descriptor, error) {
	t, err := structType(obj)
	if err != nil {
		return nil, err
	}

	if e, ok := registry.Load(t); ok {
		return e.(*entry).get(t)
	}

	e, _ := registry.LoadOrStore(t, &entry{})
	return e.(*entry).get(t)
}

// MustRegister is Register for package level variables, it panics on a malformed model
func MustRegister(obj any) *Descriptor {
	d, err := Register(obj)
	if err != nil {
		panic(err)
	}
	return d
}

func (e *entry) get(t reflect.Type) (*Descriptor, error) {
	e.once.Do(func() {
		e.desc, e.err = build(t)
	})
	return e.desc, e.err
}

func structType(obj any) (reflect.Type, error) {
	if obj == nil {
		return nil, errors.NewModelError(errors.ErrNotAModel, "nil")
	}

	t, ok := obj.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(obj)
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct || t == timeType {
		return nil, errors.NewModelError(errors.ErrNotAModel, t.String())
	}

	return t, nil
}

type fieldColumn struct {
	col      columns.Column
	index    []int
	implicit bool
}

func build(t reflect.Type) (*Descriptor, error) {
	d := &Descriptor{
		typ:     t,
		table:   t.Name(),
		columns: map[string]columns.Column{},
		fields:  map[string][]int{},
		byAttr:  map[string]string{},
	}

	collected, err := d.scan(t, nil)
	if err != nil {
		return nil, err
	}

	merged := map[string]fieldColumn{}
	for _, fc := range collected {
		if _, exists := merged[fc.col.Name]; !exists {
			d.order = append(d.order, fc.col.Name)
		}
		merged[fc.col.Name] = fc
	}

	var explicit, implicit []fieldColumn
	for _, name := range d.order {
		fc := merged[name]
		if !fc.col.Primary {
			continue
		}
		if fc.implicit {
			implicit = append(implicit, fc)
		} else {
			explicit = append(explicit, fc)
		}
	}

	primaries := explicit
	if len(explicit) == 0 {
		primaries = implicit
	} else {
		// a declared primary key replaces the id column of Base
		for _, fc := range implicit {
			delete(merged, fc.col.Name)
		}
	}

	if len(primaries) == 0 {
		return nil, errors.NewModelError(errors.ErrNoPrimary, t.String())
	}
	if len(primaries) > 1 {
		return nil, errors.NewModelError(errors.ErrMultiplePrimaries, t.String())
	}

	pk := primaries[0]
	if k := pk.col.Kind(); k != columns.KindKey && k != columns.KindText {
		return nil, errors.NewModelError(errors.ErrModel, fmt.Sprintf("%s: primary key %s must be a Key or Text column", t, pk.col.Name))
	}
	if t.FieldByIndex(pk.index).Type.Kind() != reflect.String {
		return nil, errors.NewModelError(errors.ErrModel, fmt.Sprintf("%s: primary key %s must be a string field", t, pk.col.Name))
	}
	d.primary = pk.col.Name

	order := d.order[:0]
	for _, name := range d.order {
		fc, ok := merged[name]
		if !ok {
			continue
		}
		order = append(order, name)
		d.columns[name] = fc.col
		d.fields[name] = fc.index
		d.byAttr[fc.col.ModelName] = name
	}
	d.order = order

	return d, nil
}

// scan returns inherited columns first so that the type's own fields override
// them when the merged table is built
func (d *Descriptor) scan(t reflect.Type, index []int) ([]fieldColumn, error) {
	var inherited, own []fieldColumn

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		path := make([]int, len(index), len(index)+1)
		copy(path, index)
		path = append(path, i)

		opts, err := parseTag(f.Tag.Get(tagName))
		if err != nil {
			return nil, errors.NewModelError(errors.ErrModel, fmt.Sprintf("%s.%s: %s", t, f.Name, err.Error()))
		}
		if opts.skip {
			continue
		}

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Type != timeType {
			if opts.table != "" {
				d.table = opts.table
			}
			if opts.schema != "" {
				d.schema = opts.schema
			}

			cols, err := d.scan(f.Type, path)
			if err != nil {
				return nil, err
			}

			if f.Type == baseType {
				for i := range cols {
					cols[i].implicit = true
				}
			}

			inherited = append(inherited, cols...)
			continue
		}

		if !f.IsExported() {
			continue
		}

		col, err := newColumn(f, opts)
		if err != nil {
			return nil, errors.NewModelError(errors.ErrModel, fmt.Sprintf("%s.%s: %s", t, f.Name, err.Error()))
		}

		own = append(own, fieldColumn{col: col, index: path})
	}

	return append(inherited, own...), nil
}

func newColumn(f reflect.StructField, opts tagOptions) (columns.Column, error) {
	name := opts.name
	if name == "" {
		name = f.Name
	}

	codec, err := codecFor(f.Type, opts)
	if err != nil {
		return columns.Column{}, err
	}

	if (opts.required || opts.hasDefault) && !hasPresence(f.Type, codec.Kind()) {
		return columns.Column{}, fmt.Errorf("a required or defaulted %s column needs a pointer field, %s cannot tell an explicit zero from an unset value", codec.Kind(), f.Type)
	}

	options := []columns.Option{columns.Attribute(f.Name)}

	if opts.primary {
		options = append(options, columns.AsPrimary())
	}
	if opts.required {
		options = append(options, columns.AsRequired())
	}

	if opts.hasDefault {
		def, err := defaultFor(codec, opts.def)
		if err != nil {
			return columns.Column{}, err
		}
		options = append(options, columns.DefaultsTo(def))
	}

	return columns.New(name, codec, options...), nil
}

// hasPresence reports whether a field of type t can be unset without losing a
// value. Numbers and booleans have meaningful zero values, so they need a
// pointer; for text, binary and timestamps the empty value counts as unset.
func hasPresence(t reflect.Type, kind columns.Kind) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}

	switch kind {
	case columns.KindInt, columns.KindUint, columns.KindFloat, columns.KindBool:
		return false
	}

	return true
}

func defaultFor(codec columns.Codec, literal string) (any, error) {
	if codec.Kind().IsComposite() {
		return nil, fmt.Errorf("default values are not supported for %s columns", codec.Kind())
	}

	if codec.Kind() == columns.KindTimestamp && literal == "now" {
		return columns.Now, nil
	}

	v, err := codec.Decode(literal)
	if err != nil {
		return nil, fmt.Errorf("invalid default %q: %w", literal, err)
	}
	return v, nil
}

func codecFor(t reflect.Type, opts tagOptions) (columns.Codec, error) {
	var kind columns.Kind
	var elem reflect.Type

	if opts.kind != "" {
		k, ok := columns.ParseKind(opts.kind)
		if !ok {
			return nil, fmt.Errorf("unknown column type %q", opts.kind)
		}
		kind = k
		_, elem, _ = inferKind(t)
	} else {
		k, e, ok := inferKind(t)
		if !ok {
			return nil, fmt.Errorf("unsupported field type %s", t)
		}
		kind, elem = k, e
	}

	if kind == columns.KindText {
		return columns.Text{MaxLen: opts.maxLen, Choices: opts.choices}, nil
	}

	if !kind.IsComposite() {
		return columns.NewCodec(kind, nil), nil
	}

	ofKind := columns.KindText
	if opts.of != "" {
		k, ok := columns.ParseKind(opts.of)
		if !ok {
			return nil, fmt.Errorf("unknown element type %q", opts.of)
		}
		ofKind = k
	} else if elem != nil {
		k, _, ok := inferKind(elem)
		if ok {
			ofKind = k
		}
	}

	if ofKind.IsComposite() {
		return nil, fmt.Errorf("nested %s in %s is not supported", ofKind, kind)
	}

	if kind == columns.KindSet && ofKind == columns.KindBinary {
		return nil, fmt.Errorf("%s of %s is not supported, binary elements are not comparable", kind, ofKind)
	}

	return columns.NewCodec(kind, columns.NewCodec(ofKind, nil)), nil
}

// inferKind maps a Go type to a column kind and, for composites, the element type
func inferKind(t reflect.Type) (columns.Kind, reflect.Type, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return columns.KindTimestamp, nil, true
	case t == valueSetType:
		return columns.KindSet, nil, true
	}

	switch t.Kind() {
	case reflect.String:
		return columns.KindText, nil, true
	case reflect.Bool:
		return columns.KindBool, nil, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return columns.KindInt, nil, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return columns.KindUint, nil, true
	case reflect.Float32, reflect.Float64:
		return columns.KindFloat, nil, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return columns.KindBinary, nil, true
		}
		return columns.KindList, t.Elem(), true
	case reflect.Map:
		if t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0 {
			return columns.KindSet, t.Key(), true
		}
		if t.Key().Kind() == reflect.String {
			return columns.KindMap, t.Elem(), true
		}
	}

	return columns.KindText, nil, false
}

func (d *Descriptor) Type() reflect.Type {
	return d.typ
}

// Table is the fully qualified schema.table name, or just the table when no schema is set
func (d *Descriptor) Table() string {
	if d.schema == "" {
		return d.table
	}
	return d.schema + "." + d.table
}

func (d *Descriptor) TableName() string {
	return d.table
}

func (d *Descriptor) Schema() string {
	return d.schema
}

// Columns returns a copy of the column table keyed by wire name
func (d *Descriptor) Columns() map[string]columns.Column {
	cols := make(map[string]columns.Column, len(d.columns))
	for k, v := range d.columns {
		cols[k] = v
	}
	return cols
}

// ColumnNames returns the wire names in declaration order, inherited columns first
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names
}

// Column looks a column up by wire name, then by attribute name
func (d *Descriptor) Column(name string) (columns.Column, bool) {
	if c, ok := d.columns[name]; ok {
		return c, true
	}
	if wire, ok := d.byAttr[name]; ok {
		return d.columns[wire], true
	}
	return columns.Column{}, false
}

func (d *Descriptor) Primary() columns.Column {
	return d.columns[d.primary]
}

// All is a filter on the primary key matching every entity in the table
func (d *Descriptor) All() query.Filter {
	return d.Primary().All()
}

// New returns a pointer to a new zero instance of the model
func (d *Descriptor) New() any {
	return reflect.New(d.typ).Interface()
}

func (d *Descriptor) String() string {
	names := d.ColumnNames()
	sort.Strings(names)
	return fmt.Sprintf("%s%v", d.Table(), names)
}
