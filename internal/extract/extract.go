// Package extract reads operational tables back into memory for the report
// builders.
package extract

import (
	"context"
	"errors"
	"log"
	"sort"

	"promoetl/internal/etlerr"
	"promoetl/internal/storage"
	"promoetl/internal/table"
)

// Extractor reads whole tables from the operational store. It never filters
// or paginates.
type Extractor struct {
	repo storage.Repository
}

// New returns an Extractor over repo.
func New(repo storage.Repository) *Extractor { return &Extractor{repo: repo} }

// Extract returns the full table with column names and logical types
// preserved. A missing table fails with etlerr.ErrTableNotFound.
func (e *Extractor) Extract(ctx context.Context, name string) (*table.Table, error) {
	t, err := e.repo.ReadTable(ctx, name)
	if err != nil {
		return nil, etlerr.Wrap(etlerr.StageExtract, name, err)
	}
	log.Printf("extract: table=%s rows=%d columns=%d", name, t.Len(), len(t.Schema()))
	return t, nil
}

// ExtractOptional is Extract for tables whose absence is tolerated: ok is
// false, with a nil error, when the table does not exist.
func (e *Extractor) ExtractOptional(ctx context.Context, name string) (t *table.Table, ok bool, err error) {
	t, err = e.Extract(ctx, name)
	if errors.Is(err, etlerr.ErrTableNotFound) {
		log.Printf("extract: WARNING table=%s missing, treated as absent", name)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// ExtractAll extracts each distinct name once, in sorted order, and stops at
// the first failure.
func (e *Extractor) ExtractAll(ctx context.Context, names []string) (map[string]*table.Table, error) {
	out := make(map[string]*table.Table, len(names))
	for _, name := range Distinct(names) {
		t, err := e.Extract(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}

// Distinct returns the unique non-empty names in sorted order.
func Distinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
