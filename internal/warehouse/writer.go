// Package warehouse persists report tables into the warehouse store.
package warehouse

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"promoetl/internal/ddl"
	"promoetl/internal/etlerr"
	"promoetl/internal/storage"
	"promoetl/internal/table"
)

// Writer ensures and fully replaces report tables.
type Writer struct {
	repo storage.Repository
	kind string
}

// New returns a Writer over repo; kind selects the DDL dialect and must be a
// registered storage kind.
func New(repo storage.Repository, kind string) *Writer {
	return &Writer{repo: repo, kind: kind}
}

// Definition returns the warehouse table definition for a report result:
// keys form the UNIQUE constraint and may hold NULL, every other column keeps
// the result's nullability.
func (w *Writer) Definition(result *table.Table, keys []string) (ddl.TableDef, error) {
	schema := result.Schema()
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		if schema.Index(k) < 0 {
			return ddl.TableDef{}, fmt.Errorf("key column %s not in result", k)
		}
		isKey[k] = true
	}
	for i := range schema {
		if isKey[schema[i].Name] {
			schema[i].Nullable = true
		}
	}
	return storage.TableDefFor(w.kind, result.Name(), schema, keys)
}

// Ensure creates the target table when missing. An existing table whose
// columns differ from the result's by name or type family fails with
// etlerr.ErrSchemaConflict; nullability is not compared.
func (w *Writer) Ensure(ctx context.Context, result *table.Table, keys []string) error {
	name := result.Name()
	existing, ok, err := w.repo.DescribeTable(ctx, name)
	if err != nil {
		return etlerr.Wrap(etlerr.StageWrite, name, err)
	}
	if ok {
		if err := Compatible(existing, result.Schema()); err != nil {
			return etlerr.Wrap(etlerr.StageWrite, name, fmt.Errorf("%w: %s: %v", etlerr.ErrSchemaConflict, name, err))
		}
		return nil
	}
	def, err := w.Definition(result, keys)
	if err != nil {
		return etlerr.Wrap(etlerr.StageWrite, name, err)
	}
	if err := w.repo.EnsureTable(ctx, def); err != nil {
		return etlerr.Wrap(etlerr.StageWrite, name, err)
	}
	log.Printf("warehouse: table=%s ensured columns=%s unique=%s", name, strings.Join(def.ColumnNames(), ","), strings.Join(keys, ","))
	return nil
}

// Write ensures the target table, then replaces its contents with result's
// rows in order. The replace runs in one transaction.
func (w *Writer) Write(ctx context.Context, result *table.Table, keys []string) (int64, error) {
	if err := w.Ensure(ctx, result, keys); err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := w.repo.ReplaceRows(ctx, result)
	if err != nil {
		return 0, etlerr.Wrap(etlerr.StageWrite, result.Name(), err)
	}
	log.Printf("warehouse: table=%s rows=%d elapsed=%s", result.Name(), n, time.Since(start).Truncate(time.Millisecond))
	return n, nil
}

// Compatible reports why existing cannot hold rows of want, or nil. Columns
// match by case-insensitive name regardless of order; types must be in the
// same logical family.
func Compatible(existing, want table.Schema) error {
	have := make(map[string]table.Type, len(existing))
	for _, f := range existing {
		have[strings.ToLower(f.Name)] = f.Type
	}
	var problems []string
	for _, f := range want {
		typ, ok := have[strings.ToLower(f.Name)]
		switch {
		case !ok:
			problems = append(problems, "missing column "+f.Name)
		case typ != f.Type:
			problems = append(problems, fmt.Sprintf("column %s is %s, result has %s", f.Name, typ, f.Type))
		}
		delete(have, strings.ToLower(f.Name))
	}
	extra := make([]string, 0, len(have))
	for n := range have {
		extra = append(extra, n)
	}
	sort.Strings(extra)
	for _, n := range extra {
		problems = append(problems, "unexpected column "+n)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
