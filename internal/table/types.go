// Package table implements the in-memory, column-oriented Table that flows
// between pipeline stages. Values are plain Go scalars:
//
//	text      -> string
//	integer   -> int64
//	real      -> float64
//	boolean   -> bool
//	timestamp -> time.Time (UTC)
//	NULL      -> nil
//
// Tables are immutable once built: stages construct a new Table through a
// Builder instead of mutating their input.
package table

import (
	"fmt"
	"strings"
)

// Type is a logical column type, independent of any SQL dialect.
type Type string

const (
	Text      Type = "text"
	Integer   Type = "integer"
	Real      Type = "real"
	Boolean   Type = "boolean"
	Timestamp Type = "timestamp"
)

// ParseType maps a loosely spelled logical type onto a Type. It accepts the
// names used in pipeline configs ("int", "string", "datetime", ...).
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string", "varchar":
		return Text, nil
	case "int", "integer", "bigint":
		return Integer, nil
	case "real", "float", "double", "numeric", "decimal":
		return Real, nil
	case "bool", "boolean":
		return Boolean, nil
	case "timestamp", "timestamptz", "datetime", "date":
		return Timestamp, nil
	default:
		return "", fmt.Errorf("unknown column type %q", s)
	}
}

// Field describes one column of a Table.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is the ordered list of fields of a Table.
type Schema []Field

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Index returns the position of the named column or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether both schemas have the same names, types and
// nullability in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// SameShape is Equal without nullability: same names and types in order.
func (s Schema) SameShape(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Name != o[i].Name || s[i].Type != o[i].Type {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		n := ""
		if f.Nullable {
			n = "?"
		}
		parts[i] = f.Name + " " + string(f.Type) + n
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
