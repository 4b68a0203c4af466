// Package ddl contains SQLite-specific helpers for generating DDL.
//
// It maps logical column types onto SQLite declared types. The declared types
// are chosen so that the driver hands values back in a recognizable shape:
// TIMESTAMP columns are parsed into time.Time on scan, BOOLEAN columns carry
// 0/1 integers.
package ddl

import (
	"strings"

	"promoetl/internal/table"
)

// MapType maps a logical type into a SQLite declared column type.
func MapType(t table.Type) string {
	switch t {
	case table.Integer:
		return "INTEGER"
	case table.Real:
		return "REAL"
	case table.Boolean:
		return "BOOLEAN"
	case table.Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// ParseType maps a declared column type, as reported by PRAGMA table_info,
// back onto a logical type. It follows SQLite's affinity rules loosely:
// anything containing INT is an integer, CHAR/CLOB/TEXT is text, and so on.
// Unknown declarations fall back to text.
func ParseType(declared string) table.Type {
	d := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case strings.Contains(d, "BOOL"):
		return table.Boolean
	case strings.Contains(d, "TIMESTAMP"), strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return table.Timestamp
	case strings.Contains(d, "INT"):
		return table.Integer
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"),
		strings.Contains(d, "NUMERIC"), strings.Contains(d, "DECIMAL"):
		return table.Real
	default:
		return table.Text
	}
}
