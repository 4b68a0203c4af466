// Package source implements the Source Loader: it reads flat CSV files into
// typed tables and writes them to the operational store in replace mode.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"promoetl/internal/etlerr"
	"promoetl/internal/table"
)

// ReadOptions configures ReadCSV. The zero value reads comma-separated files
// and infers every column type.
type ReadOptions struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune

	// Types declares column types by header name. Columns not listed are
	// inferred from their values.
	Types map[string]table.Type

	// NormalizeHeaders rewrites header names into lowercase ASCII
	// identifiers ("Promo Code" -> "promo_code").
	NormalizeHeaders bool
}

// ReadCSV reads a CSV stream with a header row into a Table named name. The
// stream may start with a UTF-8 or UTF-16 byte order mark. Empty cells are
// NULL. A row whose field count differs from the header, or a value that does
// not fit its declared type, fails with etlerr.ErrSchemaMismatch.
func ReadCSV(name string, r io.Reader, opt ReadOptions) (*table.Table, error) {
	cr := csv.NewReader(transform.NewReader(r, xunicode.BOMOverride(xunicode.UTF8.NewDecoder())))
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: missing header row", etlerr.ErrSchemaMismatch, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	header, err = cleanHeader(header, opt.NormalizeHeaders)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", etlerr.ErrSchemaMismatch, name, err)
	}
	for col := range opt.Types {
		if indexOf(header, col) < 0 {
			return nil, fmt.Errorf("%w: %s: declared column %q not in header", etlerr.ErrSchemaMismatch, name, col)
		}
	}

	var (
		cells [][]string
		lines []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", etlerr.ErrSchemaMismatch, name, err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: %s line %d: expected %d fields, got %d",
				etlerr.ErrSchemaMismatch, name, line, len(header), len(rec))
		}
		cells = append(cells, rec)
		lines = append(lines, line)
	}

	schema := make(table.Schema, len(header))
	for c, h := range header {
		typ, ok := opt.Types[h]
		if !ok {
			typ = InferType(column(cells, c))
		}
		schema[c] = table.Field{Name: h, Type: typ, Nullable: hasEmpty(cells, c)}
	}

	b, err := table.NewBuilder(name, schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", etlerr.ErrSchemaMismatch, err)
	}
	b.Grow(len(cells))
	row := make([]any, len(schema))
	for i, rec := range cells {
		for c, raw := range rec {
			v, err := table.Coerce(schema[c].Type, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d column %s: %v",
					etlerr.ErrSchemaMismatch, name, lines[i], schema[c].Name, err)
			}
			row[c] = v
		}
		if err := b.Append(row...); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", etlerr.ErrSchemaMismatch, name, lines[i], err)
		}
	}
	return b.Build(), nil
}

// cleanHeader trims header names and rejects empty or duplicate names.
func cleanHeader(h []string, normalize bool) ([]string, error) {
	out := make([]string, len(h))
	seen := make(map[string]struct{}, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if normalize {
			c = NormalizeFieldName(c)
		}
		if c == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("duplicate header column %q", c)
		}
		seen[c] = struct{}{}
		out[i] = c
	}
	return out, nil
}

// NormalizeFieldName converts arbitrary header text into a lowercase ASCII
// identifier suitable for SQL schemas:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. fallback to "col" if empty
func NormalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

func column(cells [][]string, c int) []string {
	out := make([]string, len(cells))
	for i, rec := range cells {
		out[i] = rec[c]
	}
	return out
}

func hasEmpty(cells [][]string, c int) bool {
	for _, rec := range cells {
		if rec[c] == "" {
			return true
		}
	}
	return false
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
