// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render CREATE TABLE statements from that model.
//
// Backend packages (internal/storage/<kind>/ddl) supply a Dialect (identifier
// quoting, IF NOT EXISTS support) and a type mapping; the rendering rules live
// here once.
package ddl

import (
	"fmt"
	"strings"
)

// Dialect captures the per-backend differences in CREATE TABLE rendering.
type Dialect struct {
	// Quote quotes one identifier segment. Nil emits identifiers verbatim.
	Quote func(string) string

	// IfNotExists renders CREATE TABLE IF NOT EXISTS.
	IfNotExists bool
}

// DoubleQuote quotes an identifier the ANSI way, doubling embedded quotes.
func DoubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// QuoteFQN quotes every dot-separated segment of fqn with quote.
func QuoteFQN(fqn string, quote func(string) string) string {
	if quote == nil {
		return fqn
	}
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.FQN must be non-empty.
//
//   - Each column must have a non-empty Name and SQLType and is rendered as
//
//     <Name> <SQLType> [NOT NULL]
//
//   - t.Unique, when set, renders a trailing UNIQUE (...) clause; every
//     listed column must exist.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	q := d.Quote
	if q == nil {
		q = func(s string) string { return s }
	}

	cols := make([]string, 0, len(t.Columns)+2)
	known := make(map[string]struct{}, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}
		known[name] = struct{}{}

		var sb strings.Builder
		sb.WriteString(q(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	if len(t.Unique) > 0 {
		uq := make([]string, len(t.Unique))
		for i, u := range t.Unique {
			if _, ok := known[u]; !ok {
				return "", fmt.Errorf("ddl: unique column %s not defined in table %s", u, fqn)
			}
			uq[i] = q(u)
		}
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(uq, ", ")))
	}

	create := "CREATE TABLE "
	if d.IfNotExists {
		create = "CREATE TABLE IF NOT EXISTS "
	}
	return fmt.Sprintf(
		"%s%s (\n  %s\n);",
		create,
		QuoteFQN(fqn, d.Quote),
		strings.Join(cols, ",\n  "),
	), nil
}
