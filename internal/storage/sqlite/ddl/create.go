package ddl

import (
	"context"
	"fmt"

	gddl "promoetl/internal/ddl"
)

// Dialect renders double-quoted identifiers and CREATE TABLE IF NOT EXISTS.
var Dialect = gddl.Dialect{Quote: gddl.DoubleQuote, IfNotExists: true}

// QuoteFQN quotes each dot-separated segment of a table name.
func QuoteFQN(fqn string) string { return gddl.QuoteFQN(fqn, gddl.DoubleQuote) }

// BuildCreateTableSQL returns a SQLite CREATE TABLE statement of the form:
//
//	CREATE TABLE IF NOT EXISTS "table" (
//	  "col1" TYPE [NOT NULL],
//	  "col2" TYPE,
//	  UNIQUE ("col1")
//	);
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	s, err := gddl.BuildCreateTableSQL(t, Dialect)
	if err != nil {
		return "", fmt.Errorf("sqlite %w", err)
	}
	return s, nil
}

// Execer is the subset of a repository EnsureTable needs.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// EnsureTable builds the CREATE TABLE statement for def and runs it.
func EnsureTable(ctx context.Context, repo Execer, def gddl.TableDef) error {
	sql, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sql)
}
