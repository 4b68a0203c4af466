// Package postgres implements a Postgres repository using pgx v5. Table loads
// and warehouse replaces stream rows through COPY inside a transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	gddl "promoetl/internal/ddl"
	"promoetl/internal/etlerr"
	"promoetl/internal/storage"
	pgddl "promoetl/internal/storage/postgres/ddl"
	"promoetl/internal/table"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN       string // connection string for pgxpool
	BatchSize int    // rows per COPY call
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for
// cleanup. The pool is pinged so an unreachable server fails here rather than
// on first use.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, pgError("ping", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

// LoadTable drops, recreates and fills the table named t.Name() in one
// transaction.
func (r *Repository) LoadTable(ctx context.Context, t *table.Table) (int64, error) {
	create, err := pgddl.BuildCreateTableSQL(gddl.FromSchema(t.Name(), t.Schema(), pgddl.MapType, nil))
	if err != nil {
		return 0, err
	}
	return r.inTx(ctx, t, "DROP TABLE IF EXISTS "+pgddl.QuoteFQN(t.Name()), create)
}

// ReplaceRows deletes every row of the table and COPYs t's rows in order, in
// one transaction.
func (r *Repository) ReplaceRows(ctx context.Context, t *table.Table) (int64, error) {
	return r.inTx(ctx, t, "DELETE FROM "+pgddl.QuoteFQN(t.Name()))
}

// inTx runs the preamble statements and then COPYs t into its table, all in
// one transaction.
func (r *Repository) inTx(ctx context.Context, t *table.Table, preamble ...string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, pgError("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, stmt := range preamble {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, pgError(t.Name(), err)
		}
	}
	ident := splitFQN(t.Name())
	n, err := storage.CopyTable(ctx, t, r.cfg.BatchSize, func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		return tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	})
	if err != nil {
		return n, pgError("copy into "+t.Name(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return n, pgError("commit", err)
	}
	return n, nil
}

// DescribeTable reads the column list from information_schema. Unqualified
// names resolve against current_schema().
func (r *Repository) DescribeTable(ctx context.Context, name string) (table.Schema, bool, error) {
	var schemaName *string
	tableName := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		s := name[:i]
		schemaName, tableName = &s, name[i+1:]
	}
	rows, err := r.pool.Query(ctx, `
SELECT column_name, data_type, is_nullable = 'YES'
FROM information_schema.columns
WHERE table_schema = COALESCE($1::text, current_schema()) AND table_name = $2
ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, false, pgError("describe "+name, err)
	}
	defer rows.Close()

	var out table.Schema
	for rows.Next() {
		var (
			col, dataType string
			nullable      bool
		)
		if err := rows.Scan(&col, &dataType, &nullable); err != nil {
			return nil, false, pgError("describe "+name, err)
		}
		out = append(out, table.Field{Name: col, Type: pgddl.ParseType(dataType), Nullable: nullable})
	}
	if err := rows.Err(); err != nil {
		return nil, false, pgError("describe "+name, err)
	}
	return out, len(out) > 0, nil
}

// ReadTable returns the full contents of a table. Real columns are cast to
// double precision so numeric columns decode to float64.
func (r *Repository) ReadTable(ctx context.Context, name string) (*table.Table, error) {
	schema, ok, err := r.DescribeTable(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", etlerr.ErrTableNotFound, name)
	}
	rows, err := r.pool.Query(ctx, selectSQL(name, schema))
	if err != nil {
		return nil, pgError("select "+name, err)
	}
	defer rows.Close()
	return storage.ScanTable(name, schema, rows)
}

// EnsureTable creates the table described by def unless it exists.
func (r *Repository) EnsureTable(ctx context.Context, def gddl.TableDef) error {
	return pgddl.EnsureTable(ctx, r, def)
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return pgError("exec", err)
	}
	return nil
}

// pgError keeps the server's detail and SQLSTATE in the message.
func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Detail != "" {
			return fmt.Errorf("postgres: %s: %s: %s (%s): %w", op, pgErr.Message, pgErr.Detail, pgErr.SQLState(), err)
		}
		return fmt.Errorf("postgres: %s (%s): %w", op, pgErr.SQLState(), err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

// selectSQL reads every column of name. Columns are single identifiers even
// when they contain a dot; numeric columns are cast so pgx scans float64.
func selectSQL(name string, schema table.Schema) string {
	exprs := make([]string, len(schema))
	for i, f := range schema {
		exprs[i] = gddl.DoubleQuote(f.Name)
		if f.Type == table.Real {
			exprs[i] += "::double precision"
		}
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), pgddl.QuoteFQN(name))
}
