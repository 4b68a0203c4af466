package storage

import (
	"fmt"
	"sync"

	"promoetl/internal/ddl"
	"promoetl/internal/table"
)

// TypeMapper renders logical column types for one backend. Backends register
// theirs at init time so callers can derive dialect-correct table definitions
// without importing the backend package.
var (
	ddlMu   sync.RWMutex
	mappers = map[string]ddl.TypeMapper{}
)

// RegisterDDL registers (or replaces) the type mapper for a storage kind.
func RegisterDDL(kind string, m ddl.TypeMapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	mappers[kind] = m
}

// TableDefFor builds the table definition for schema in the dialect of kind,
// with unique as the table's UNIQUE constraint.
func TableDefFor(kind, name string, schema table.Schema, unique []string) (ddl.TableDef, error) {
	ddlMu.RLock()
	m, ok := mappers[kind]
	ddlMu.RUnlock()
	if !ok {
		return ddl.TableDef{}, fmt.Errorf("no DDL type mapper registered for storage.kind=%q", kind)
	}
	return ddl.FromSchema(name, schema, m, unique), nil
}
