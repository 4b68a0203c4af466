// Package storage contains the storage-agnostic contracts shared by the
// operational and warehouse stores, plus the backend factory.
//
// Concrete backends live in subpackages (postgres, sqlite, mssql) and register
// themselves at init time; import internal/storage/all to enable every one.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"promoetl/internal/ddl"
	"promoetl/internal/etlerr"
	"promoetl/internal/table"
)

// Repository is the contract every store backend implements.
//
// Table names are plain identifiers, optionally schema-qualified
// ("public.users"); backends quote them per dialect.
type Repository interface {
	// LoadTable replaces the named table with t: the prior table is dropped,
	// recreated from t's schema and bulk-filled, all in one transaction.
	LoadTable(ctx context.Context, t *table.Table) (int64, error)

	// ReadTable returns the full contents of a table with column names and
	// logical types preserved. A missing table yields etlerr.ErrTableNotFound.
	ReadTable(ctx context.Context, name string) (*table.Table, error)

	// DescribeTable reports the logical schema of an existing table. The bool
	// is false when the table does not exist.
	DescribeTable(ctx context.Context, name string) (table.Schema, bool, error)

	// EnsureTable creates the table when it does not exist yet.
	EnsureTable(ctx context.Context, def ddl.TableDef) error

	// ReplaceRows deletes every row of the table named t.Name() and inserts
	// t's rows in order inside one transaction.
	ReplaceRows(ctx context.Context, t *table.Table) (int64, error)

	// Exec runs a raw statement, typically DDL.
	Exec(ctx context.Context, sql string) error

	Close()
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name: "postgres", "sqlite", "mssql".
	Kind string

	// DSN is passed to the backend driver unchanged.
	DSN string

	// BatchSize bounds the rows per bulk-copy call. Zero uses DefaultBatchSize.
	BatchSize int
}

// DefaultBatchSize is used when Config.BatchSize is unset.
const DefaultBatchSize = 5000

// Factory opens a Repository for a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered backend kinds in sorted order.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Repository of cfg.Kind. Factory failures (unreachable server,
// bad credentials) are reported as etlerr.ErrStoreUnavailable with the
// driver error kept in the chain.
func New(ctx context.Context, cfg Config) (Repository, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	regMu.RLock()
	f, ok := factories[kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", etlerr.ErrStoreUnavailable, kind, err)
	}
	return repo, nil
}
