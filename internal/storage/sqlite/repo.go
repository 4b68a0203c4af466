// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver. It performs batched INSERTs
// inside a transaction; SQLite has no dedicated bulk-load API like Postgres
// COPY, but transactions keep performance acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	gddl "promoetl/internal/ddl"
	"promoetl/internal/etlerr"
	"promoetl/internal/storage"
	sqliteddl "promoetl/internal/storage/sqlite/ddl"
	"promoetl/internal/table"

	_ "modernc.org/sqlite"
)

// timeFormat is how timestamps are bound. The driver parses it back into
// time.Time for TIMESTAMP columns.
const timeFormat = "2006-01-02 15:04:05.999999999-07:00"

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// Open opens a SQLite database. A single connection is used so that
// ":memory:" databases are shared by every statement of the repository.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// New wraps an existing database handle.
func New(db *sql.DB, cfg Config) *Repository {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	return &Repository{db: db, cfg: cfg}
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	// Fail fast on unusable paths.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return New(db, cfg), closeFn, nil
}

// LoadTable drops, recreates and fills the table named t.Name() in one
// transaction. The new table has exactly t's columns.
func (r *Repository) LoadTable(ctx context.Context, t *table.Table) (int64, error) {
	def := gddl.FromSchema(t.Name(), t.Schema(), sqliteddl.MapType, nil)
	create, err := sqliteddl.BuildCreateTableSQL(def)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqliteddl.QuoteFQN(t.Name())); err != nil {
		return 0, fmt.Errorf("sqlite: drop %s: %w", t.Name(), err)
	}
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("sqlite: create %s: %w", t.Name(), err)
	}
	n, err := r.copyRows(ctx, tx, t)
	if err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// ReplaceRows deletes every row of the table and inserts t's rows in order
// inside one transaction.
func (r *Repository) ReplaceRows(ctx context.Context, t *table.Table) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqliteddl.QuoteFQN(t.Name())); err != nil {
		return 0, fmt.Errorf("sqlite: delete %s: %w", t.Name(), err)
	}
	n, err := r.copyRows(ctx, tx, t)
	if err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// copyRows inserts t's rows through a prepared INSERT within tx.
func (r *Repository) copyRows(ctx context.Context, tx *sql.Tx, t *table.Table) (int64, error) {
	cols := t.Schema().Names()
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = gddl.DoubleQuote(c)
		placeholders[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		sqliteddl.QuoteFQN(t.Name()),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	return storage.CopyTable(ctx, t, r.cfg.BatchSize, func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		var inserted int64
		for _, row := range rows {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("sqlite: row length %d != columns length %d", len(row), len(columns))
			}
			if _, err := stmt.ExecContext(ctx, bindArgs(row)...); err != nil {
				return inserted, fmt.Errorf("sqlite: insert into %s: %w", t.Name(), err)
			}
			inserted++
		}
		return inserted, nil
	})
}

// bindArgs converts canonical values into the representation stored by
// SQLite.
func bindArgs(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		switch x := v.(type) {
		case time.Time:
			out[i] = x.UTC().Format(timeFormat)
		case bool:
			if x {
				out[i] = int64(1)
			} else {
				out[i] = int64(0)
			}
		default:
			out[i] = v
		}
	}
	return out
}

// DescribeTable reads the column list from pragma_table_info.
func (r *Repository) DescribeTable(ctx context.Context, name string) (table.Schema, bool, error) {
	schemaName, tableName := "main", name
	if i := strings.LastIndex(name, "."); i >= 0 {
		schemaName, tableName = name[:i], name[i+1:]
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, type, "notnull" FROM pragma_table_info(?, ?) ORDER BY cid`,
		tableName, schemaName)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: describe %s: %w", name, err)
	}
	defer rows.Close()

	var out table.Schema
	for rows.Next() {
		var (
			col, typ string
			notNull  int64
		)
		if err := rows.Scan(&col, &typ, &notNull); err != nil {
			return nil, false, fmt.Errorf("sqlite: describe %s: %w", name, err)
		}
		out = append(out, table.Field{Name: col, Type: sqliteddl.ParseType(typ), Nullable: notNull == 0})
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("sqlite: describe %s: %w", name, err)
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
	quoted := make([]string, len(schema))
	for i, f := range schema {
		quoted[i] = gddl.DoubleQuote(f.Name)
	}
	// rowid order is insertion order for the tables this package creates.
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY rowid", strings.Join(quoted, ", "), sqliteddl.QuoteFQN(name)))
	if err != nil {
		return nil, fmt.Errorf("sqlite: select %s: %w", name, err)
	}
	defer rows.Close()
	return storage.ScanTable(name, schema, rows)
}

// EnsureTable creates the table described by def unless it exists.
func (r *Repository) EnsureTable(ctx context.Context, def gddl.TableDef) error {
	return sqliteddl.EnsureTable(ctx, r, def)
}

// Exec executes an arbitrary SQL statement (typically DDL) using the underlying
// database/sql connection.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}
