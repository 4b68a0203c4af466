package table

import (
	"fmt"
)

// Table is an immutable, column-oriented relation. Column i of the schema is
// stored in cols[i]; every column holds Len() values.
type Table struct {
	name   string
	schema Schema
	cols   [][]any
	rows   int
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns a copy of the table schema.
func (t *Table) Schema() Schema {
	out := make(Schema, len(t.schema))
	copy(out, t.schema)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int { return t.schema.Index(name) }

// Value returns the value at row r, column c.
func (t *Table) Value(r, c int) any { return t.cols[c][r] }

// Column returns the values of column c. Callers must not modify the slice.
func (t *Table) Column(c int) []any { return t.cols[c] }

// Row returns a freshly allocated copy of row r in schema order.
func (t *Table) Row(r int) []any {
	out := make([]any, len(t.cols))
	for c := range t.cols {
		out[c] = t.cols[c][r]
	}
	return out
}

// Rows returns every row in order, each a fresh slice aligned to the schema.
// This is the shape bulk-copy APIs consume.
func (t *Table) Rows() [][]any {
	out := make([][]any, t.rows)
	for r := 0; r < t.rows; r++ {
		out[r] = t.Row(r)
	}
	return out
}

// Equal reports whether a and b have the same name, schema and rows.
func Equal(a, b *Table) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.name != b.name || !a.schema.Equal(b.schema) || a.rows != b.rows {
		return false
	}
	for c := range a.cols {
		for r := 0; r < a.rows; r++ {
			if Compare(a.cols[c][r], b.cols[c][r]) != 0 {
				return false
			}
		}
	}
	return true
}

// Builder accumulates rows for a new Table. A Builder is not safe for
// concurrent use.
type Builder struct {
	name   string
	schema Schema
	cols   [][]any
	rows   int
}

// NewBuilder starts a table with the given schema. Column names must be
// unique and non-empty.
func NewBuilder(name string, schema Schema) (*Builder, error) {
	seen := make(map[string]struct{}, len(schema))
	for _, f := range schema {
		if f.Name == "" {
			return nil, fmt.Errorf("table %s: empty column name", name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %q", name, f.Name)
		}
		if _, err := ParseType(string(f.Type)); err != nil {
			return nil, fmt.Errorf("table %s: column %s: %w", name, f.Name, err)
		}
		seen[f.Name] = struct{}{}
	}
	s := make(Schema, len(schema))
	copy(s, schema)
	return &Builder{name: name, schema: s, cols: make([][]any, len(s))}, nil
}

// Grow preallocates room for n more rows.
func (b *Builder) Grow(n int) {
	for c := range b.cols {
		if cap(b.cols[c])-len(b.cols[c]) < n {
			grown := make([]any, len(b.cols[c]), len(b.cols[c])+n)
			copy(grown, b.cols[c])
			b.cols[c] = grown
		}
	}
}

// Append adds one row. Every value must be NULL or match its column type, and
// NULL is only accepted in nullable columns.
func (b *Builder) Append(values ...any) error {
	if len(values) != len(b.schema) {
		return fmt.Errorf("table %s: row has %d values, schema has %d columns", b.name, len(values), len(b.schema))
	}
	for c, v := range values {
		f := b.schema[c]
		if v == nil {
			if !f.Nullable {
				return fmt.Errorf("table %s: NULL in non-nullable column %s", b.name, f.Name)
			}
			continue
		}
		if typ, ok := typeOf(v); !ok || typ != f.Type {
			return fmt.Errorf("table %s: column %s: %T is not %s", b.name, f.Name, v, f.Type)
		}
	}
	for c, v := range values {
		b.cols[c] = append(b.cols[c], v)
	}
	b.rows++
	return nil
}

// Len returns the number of rows appended so far.
func (b *Builder) Len() int { return b.rows }

// Build freezes the accumulated rows into a Table. The Builder must not be
// used afterwards.
func (b *Builder) Build() *Table {
	t := &Table{name: b.name, schema: b.schema, cols: b.cols, rows: b.rows}
	b.cols = nil
	return t
}

// FromRows builds a table in one call; convenient for tests and for small
// results.
func FromRows(name string, schema Schema, rows [][]any) (*Table, error) {
	b, err := NewBuilder(name, schema)
	if err != nil {
		return nil, err
	}
	b.Grow(len(rows))
	for i, r := range rows {
		if err := b.Append(r...); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.Build(), nil
}
