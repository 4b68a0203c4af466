package storage

import (
	"fmt"

	"promoetl/internal/table"
)

// RowScanner is the iteration surface shared by *sql.Rows and pgx.Rows.
type RowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanTable drains rows into a new Table with the given schema. Each driver
// value is normalized to the canonical Go type of its column.
func ScanTable(name string, schema table.Schema, rows RowScanner) (*table.Table, error) {
	b, err := table.NewBuilder(name, schema)
	if err != nil {
		return nil, err
	}
	raw := make([]any, len(schema))
	ptrs := make([]any, len(schema))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	vals := make([]any, len(schema))

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row %d: %w", name, b.Len(), err)
		}
		for i, f := range schema {
			v, err := table.Normalize(f.Type, raw[i])
			if err != nil {
				return nil, fmt.Errorf("read %s row %d column %s: %w", name, b.Len(), f.Name, err)
			}
			vals[i] = v
		}
		if err := b.Append(vals...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return b.Build(), nil
}
