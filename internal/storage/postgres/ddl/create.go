package ddl

import (
	"context"
	"fmt"

	gddl "promoetl/internal/ddl"
)

// Dialect renders double-quoted identifiers and CREATE TABLE IF NOT EXISTS.
var Dialect = gddl.Dialect{Quote: gddl.DoubleQuote, IfNotExists: true}

// QuoteFQN quotes a possibly schema-qualified name like "public.users" to
// `"public"."users"`.
func QuoteFQN(fqn string) string { return gddl.QuoteFQN(fqn, gddl.DoubleQuote) }

// BuildCreateTableSQL returns a Postgres CREATE TABLE IF NOT EXISTS statement
// for the given table definition.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	s, err := gddl.BuildCreateTableSQL(t, Dialect)
	if err != nil {
		return "", fmt.Errorf("postgres %w", err)
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
	if err := repo.Exec(ctx, sql); err != nil {
		return fmt.Errorf("apply DDL: %w", err)
	}
	return nil
}
