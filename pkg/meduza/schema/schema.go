// Package schema derives meduza schema documents from registered models and
// deploys them to the control endpoint of a server.
package schema

import (
	"fmt"
	"sort"

	"github.com/diwise/meduza/pkg/meduza/columns"
	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/model"
	yaml "gopkg.in/yaml.v2"
)

type Document struct {
	Name   string           `yaml:"schema"`
	Tables map[string]Table `yaml:"tables"`
}

type Table struct {
	Primary Primary           `yaml:"primary"`
	Columns map[string]Column `yaml:"columns"`
}

// Primary describes the key of a table. Random keys are generated by the
// server when an entity is stored without an id.
type Primary struct {
	Type   string `yaml:"type"`
	Column string `yaml:"column"`
}

type Column struct {
	Type       string         `yaml:"type"`
	ClientName string         `yaml:"clientName,omitempty"`
	Options    map[string]any `yaml:"options,omitempty"`
}

const (
	PrimaryRandom string = "random"
	PrimarySimple string = "simple"
)

// ForModels builds a document describing the tables of the given models.
// Models without a schema are placed in the named one, models that belong to
// another schema are rejected.
func ForModels(name string, models ...any) (*Document, error) {
	doc := &Document{
		Name:   name,
		Tables: map[string]Table{},
	}

	for _, m := range models {
		d, err := model.Register(m)
		if err != nil {
			return nil, err
		}

		if d.Schema() != "" && d.Schema() != name {
			return nil, errors.NewModelError(errors.ErrModel, fmt.Sprintf("%s belongs to schema %q, not %q", d.TableName(), d.Schema(), name))
		}

		if _, exists := doc.Tables[d.TableName()]; exists {
			return nil, errors.NewModelError(errors.ErrModel, fmt.Sprintf("table %s declared twice", d.TableName()))
		}

		doc.Tables[d.TableName()] = tableFor(d)
	}

	return doc, nil
}

func tableFor(d *model.Descriptor) Table {
	pk := d.Primary()

	t := Table{
		Primary: Primary{Type: PrimarySimple, Column: pk.Name},
		Columns: map[string]Column{},
	}

	if pk.Kind() == columns.KindKey {
		t.Primary.Type = PrimaryRandom
	}

	for name, c := range d.Columns() {
		if c.Primary {
			continue
		}
		t.Columns[name] = columnFor(c)
	}

	return t
}

func columnFor(c columns.Column) Column {
	col := Column{
		Type:    c.Kind().String(),
		Options: map[string]any{},
	}

	if c.ModelName != "" && c.ModelName != c.Name {
		col.ClientName = c.ModelName
	}

	if c.Required {
		col.Options["required"] = true
	}

	switch codec := c.Codec.(type) {
	case columns.Text:
		if codec.MaxLen > 0 {
			col.Options["max_len"] = codec.MaxLen
		}
		if len(codec.Choices) > 0 {
			choices := append([]string{}, codec.Choices...)
			sort.Strings(choices)
			col.Options["choices"] = choices
		}
	case columns.Set:
		col.Options["subtype"] = elementType(codec.Of)
	case columns.List:
		col.Options["subtype"] = elementType(codec.Of)
	case columns.Map:
		col.Options["subtype"] = elementType(codec.Of)
	}

	if len(col.Options) == 0 {
		col.Options = nil
	}

	return col
}

func elementType(of columns.Codec) string {
	if of == nil {
		return columns.KindText.String()
	}
	return of.Kind().String()
}

func (d *Document) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

func Parse(b []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(b, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
