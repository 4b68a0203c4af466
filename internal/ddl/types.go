package ddl

import "promoetl/internal/table"

// ColumnDef describes a single column in a table definition. It intentionally
// uses simple, database-agnostic fields.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef holds the fully-qualified table name (FQN), an ordered list of
// columns and an optional UNIQUE constraint. The FQN is expected in dotted
// form (e.g., "schema.table") and is quoted per segment by renderers.
type TableDef struct {
	FQN     string
	Columns []ColumnDef

	// Unique lists the columns of a single UNIQUE constraint. Unlike a primary
	// key it admits NULL keys, which report groups may legitimately have.
	Unique []string
}

// ColumnNames returns the column names in order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// TypeMapper renders a logical column type in a backend's SQL dialect.
type TypeMapper func(table.Type) string

// FromSchema derives a TableDef from a table schema. Column types are mapped
// with mapType; nullability follows the schema.
func FromSchema(fqn string, s table.Schema, mapType TypeMapper, unique []string) TableDef {
	cols := make([]ColumnDef, len(s))
	for i, f := range s {
		cols[i] = ColumnDef{
			Name:     f.Name,
			SQLType:  mapType(f.Type),
			Nullable: f.Nullable,
		}
	}
	var u []string
	if len(unique) > 0 {
		u = append(u, unique...)
	}
	return TableDef{FQN: fqn, Columns: cols, Unique: u}
}
