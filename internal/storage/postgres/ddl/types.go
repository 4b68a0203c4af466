// Package ddl contains Postgres-specific helpers for generating DDL.
package ddl

import (
	"strings"

	"promoetl/internal/table"
)

// MapType maps a logical column type onto a Postgres SQL type.
//
//	text      -> TEXT
//	integer   -> BIGINT
//	real      -> DOUBLE PRECISION
//	boolean   -> BOOLEAN
//	timestamp -> TIMESTAMPTZ
func MapType(t table.Type) string {
	switch t {
	case table.Integer:
		return "BIGINT"
	case table.Real:
		return "DOUBLE PRECISION"
	case table.Boolean:
		return "BOOLEAN"
	case table.Timestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// ParseType maps an information_schema.columns.data_type value back onto a
// logical type. Types within a family collapse: varchar, char and text are
// all text; smallint, integer and bigint are all integer. Unknown types are
// read as text.
func ParseType(dataType string) table.Type {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "smallint", "integer", "bigint":
		return table.Integer
	case "real", "double precision", "numeric", "decimal":
		return table.Real
	case "boolean":
		return table.Boolean
	case "date", "timestamp with time zone", "timestamp without time zone":
		return table.Timestamp
	default:
		return table.Text
	}
}
