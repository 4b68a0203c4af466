// Package ddl provides MSSQL-specific helpers for generating CREATE TABLE
// statements from the generic ddl.TableDef model.
//
// The builder here:
//   - Uses SQL Server-style identifier quoting: [schema].[table], [col].
//   - Wraps CREATE TABLE in an IF OBJECT_ID(...) IS NULL guard since T-SQL
//     does not support CREATE TABLE IF NOT EXISTS.
package ddl

import (
	"context"
	"fmt"
	"strings"

	gddl "promoetl/internal/ddl"
)

// QuoteIdent quotes a single identifier segment for SQL Server using
// bracket syntax, escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// QuoteFQN quotes a possibly schema-qualified table name, e.g.:
//
//	"dbo.Users"   -> [dbo].[Users]
//	"Users"       -> [Users]
func QuoteFQN(fqn string) string { return gddl.QuoteFQN(fqn, QuoteIdent) }

// Dialect renders bracketed identifiers; the existence guard is added by
// BuildCreateTableSQL.
var Dialect = gddl.Dialect{Quote: QuoteIdent}

// BuildCreateTableSQL returns a T-SQL script that creates a table matching
// the provided definition if it does not already exist:
//
//	IF OBJECT_ID(N'[schema].[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [schema].[table] (
//	    [col1] TYPE [NOT NULL],
//	    UNIQUE ([col1])
//	  );
//	END;
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	create, err := gddl.BuildCreateTableSQL(t, Dialect)
	if err != nil {
		return "", fmt.Errorf("mssql %w", err)
	}
	fqn := QuoteFQN(strings.TrimSpace(t.FQN))
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s\nEND;",
		strings.ReplaceAll(fqn, "'", "''"),
		strings.ReplaceAll(create, "\n", "\n  "),
	), nil
}

// Execer is the subset of a repository EnsureTable needs.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// EnsureTable builds the guarded CREATE TABLE script for def and runs it.
func EnsureTable(ctx context.Context, repo Execer, def gddl.TableDef) error {
	sql, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sql)
}
