// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API. Loads and replaces run their bulk copies inside
// the same transaction as the preceding DROP/DELETE.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	gddl "promoetl/internal/ddl"
	"promoetl/internal/etlerr"
	"promoetl/internal/storage"
	msddl "promoetl/internal/storage/mssql/ddl"
	"promoetl/internal/table"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN       string
	BatchSize int
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// New wraps an existing database handle.
func New(db *sql.DB, cfg Config) *Repository {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	return &Repository{db: db, cfg: cfg}
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return New(db, cfg), closeFn, nil
}

// LoadTable drops, recreates and bulk-fills the table in one transaction.
func (r *Repository) LoadTable(ctx context.Context, t *table.Table) (int64, error) {
	create, err := msddl.BuildCreateTableSQL(gddl.FromSchema(t.Name(), t.Schema(), msddl.MapType, nil))
	if err != nil {
		return 0, err
	}
	return r.inTx(ctx, t, "DROP TABLE IF EXISTS "+msddl.QuoteFQN(t.Name()), create)
}

// ReplaceRows deletes every row and bulk-inserts t's rows in one transaction.
func (r *Repository) ReplaceRows(ctx context.Context, t *table.Table) (int64, error) {
	return r.inTx(ctx, t, "DELETE FROM "+msddl.QuoteFQN(t.Name()))
}

func (r *Repository) inTx(ctx context.Context, t *table.Table, preamble ...string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	for _, stmt := range preamble {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			rollback()
			return 0, fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	n, err := storage.CopyTable(ctx, t, r.cfg.BatchSize, func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		return bulkCopy(ctx, tx, msddl.QuoteFQN(t.Name()), columns, rows)
	})
	if err != nil {
		rollback()
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// bulkCopy sends rows through one INSERT BULK statement within tx.
func bulkCopy(ctx context.Context, tx *sql.Tx, fqn string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(fqn, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

const describeSQL = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`

// DescribeTable reads the column list from INFORMATION_SCHEMA. Unqualified
// names resolve against the caller's default schema.
func (r *Repository) DescribeTable(ctx context.Context, name string) (table.Schema, bool, error) {
	schemaName, tableName := "", name
	if i := strings.LastIndex(name, "."); i >= 0 {
		schemaName, tableName = name[:i], name[i+1:]
	}
	rows, err := r.db.QueryContext(ctx, describeSQL, schemaName, tableName)
	if err != nil {
		return nil, false, fmt.Errorf("describe %s: %w", name, err)
	}
	defer rows.Close()

	var out table.Schema
	for rows.Next() {
		var col, dataType, nullable string
		if err := rows.Scan(&col, &dataType, &nullable); err != nil {
			return nil, false, fmt.Errorf("describe %s: %w", name, err)
		}
		out = append(out, table.Field{
			Name:     col,
			Type:     msddl.ParseType(dataType),
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("describe %s: %w", name, err)
	}
	return out, len(out) > 0, nil
}

// ReadTable returns the full contents of a table.
func (r *Repository) ReadTable(ctx context.Context, name string) (*table.Table, error) {
	schema, ok, err := r.DescribeTable(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", etlerr.ErrTableNotFound, name)
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(mapIdent(schema.Names()), ", "), msddl.QuoteFQN(name)))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", name, err)
	}
	defer rows.Close()
	return storage.ScanTable(name, schema, rows)
}

// EnsureTable creates the table described by def unless it exists.
func (r *Repository) EnsureTable(ctx context.Context, def gddl.TableDef) error {
	return msddl.EnsureTable(ctx, r, def)
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msddl.QuoteIdent(c)
	}
	return out
}
