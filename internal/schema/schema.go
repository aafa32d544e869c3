// Package schema models the per-tenant column descriptors that drive
// validation and additive schema evolution.
//
// A Descriptor is the single source of truth for "what columns exist" on one
// logical table. It is append-only: columns gain entries when first observed
// and are never removed or retyped, so the descriptor is always a superset of
// every column ever successfully ingested for that table.
package schema

import "fmt"

// ColumnType is the declared logical type of a column.
//
// The storage backends map these onto their own DDL types; the validator uses
// them to coerce cell values.
type ColumnType string

const (
	TypeString    ColumnType = "STRING"
	TypeInt       ColumnType = "INT"
	TypeFloat     ColumnType = "FLOAT"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// Valid reports whether t is one of the declared column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeTimestamp:
		return true
	}
	return false
}

// Numeric reports whether the type carries numeric values.
func (t ColumnType) Numeric() bool { return t == TypeInt || t == TypeFloat }

// Column is one declared column: canonical name, type, and whether the
// validator treats its absence from an upload as fatal.
type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Required bool       `json:"required"`
}

// Descriptor is the ordered, append-only column set of one logical table.
type Descriptor struct {
	Table   string
	Columns []Column

	index map[string]int
}

// NewDescriptor builds a descriptor over the given columns.
//
// Duplicate column names are rejected: the descriptor is a set keyed by
// canonical name, and two declarations for one name would make the "known"
// side of the evolution delta ambiguous.
func NewDescriptor(table string, cols []Column) (*Descriptor, error) {
	d := &Descriptor{
		Table: table,
		index: make(map[string]int, len(cols)),
	}
	for _, c := range cols {
		if err := d.append(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Has reports whether the column is already declared.
func (d *Descriptor) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Get returns the declared column and whether it exists.
func (d *Descriptor) Get(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.Columns[i], true
}

// Names returns the declared column names in declaration order.
func (d *Descriptor) Names() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Required returns the names of required columns in declaration order.
func (d *Descriptor) Required() []string {
	var out []string
	for _, c := range d.Columns {
		if c.Required {
			out = append(out, c.Name)
		}
	}
	return out
}

// Append adds newly observed columns to the descriptor.
//
// Evolution is strictly additive: re-declaring an existing column with a
// different type is an error, and nothing is ever removed. Appending a
// column that already exists with the same type is a no-op, which keeps the
// operation idempotent across racing runs that discovered the same delta.
func (d *Descriptor) Append(cols ...Column) error {
	for _, c := range cols {
		if prev, ok := d.Get(c.Name); ok {
			if prev.Type != c.Type {
				return fmt.Errorf("schema: column %q already declared as %s, cannot redeclare as %s",
					c.Name, prev.Type, c.Type)
			}
			continue
		}
		if err := d.append(c); err != nil {
			return err
		}
	}
	return nil
}

func (d *Descriptor) append(c Column) error {
	if c.Name == "" {
		return fmt.Errorf("schema: empty column name in table %q", d.Table)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("schema: column %q has unknown type %q", c.Name, c.Type)
	}
	if _, ok := d.index[c.Name]; ok {
		return fmt.Errorf("schema: duplicate column %q in table %q", c.Name, d.Table)
	}
	d.index[c.Name] = len(d.Columns)
	d.Columns = append(d.Columns, c)
	return nil
}

// Delta returns the incoming columns not yet declared (incoming − known),
// preserving incoming order. This is the exact set the evolution manager
// must add to the target table.
func (d *Descriptor) Delta(incoming []Column) []Column {
	var out []Column
	seen := make(map[string]bool, len(incoming))
	for _, c := range incoming {
		if c.Name == "" || d.Has(c.Name) || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out
}
