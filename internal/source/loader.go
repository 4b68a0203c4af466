package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"time"

	"promoetl/internal/etlerr"
	"promoetl/internal/storage"
	"promoetl/internal/table"
)

// Policy decides what happens when a reload changes a table's columns.
type Policy string

const (
	// PolicyReplace drops and recreates the table, logging a warning when
	// the schema changed.
	PolicyReplace Policy = "replace"

	// PolicyReject fails with etlerr.ErrSchemaMismatch when the table
	// already exists with different columns or types.
	PolicyReject Policy = "reject"
)

// ParsePolicy maps a config value onto a Policy. Empty means PolicyReplace.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown schema change policy %q (want replace|reject)", s)
	}
}

// File describes one source file and the operational table it feeds.
type File struct {
	Table string
	Path  string
	ReadOptions
}

// Result summarizes one loaded table.
type Result struct {
	Table    string
	Path     string
	Rows     int64
	Schema   table.Schema
	Duration time.Duration
}

// Loader writes source files into the operational store. It is the only
// component that changes the operational store's catalog.
type Loader struct {
	repo   storage.Repository
	policy Policy
}

// NewLoader returns a Loader writing into repo.
func NewLoader(repo storage.Repository, policy Policy) *Loader {
	if policy == "" {
		policy = PolicyReplace
	}
	return &Loader{repo: repo, policy: policy}
}

// Load loads every file in table-name order and stops at the first failure.
// Tables loaded before the failure stay loaded; each individual table load is
// all-or-nothing.
func (l *Loader) Load(ctx context.Context, files []File) ([]Result, error) {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Table < sorted[j].Table })

	out := make([]Result, 0, len(sorted))
	for _, f := range sorted {
		res, err := l.LoadFile(ctx, f)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// LoadFile reads one file and replaces its table in the operational store.
func (l *Loader) LoadFile(ctx context.Context, f File) (Result, error) {
	start := time.Now()
	t, err := readFile(f)
	if err != nil {
		return Result{}, etlerr.Wrap(etlerr.StageLoad, f.Table, err)
	}

	prior, exists, err := l.repo.DescribeTable(ctx, f.Table)
	if err != nil {
		return Result{}, etlerr.Wrap(etlerr.StageLoad, f.Table, err)
	}
	if exists && !prior.SameShape(t.Schema()) {
		if l.policy == PolicyReject {
			return Result{}, etlerr.Wrap(etlerr.StageLoad, f.Table, fmt.Errorf(
				"%w: table %s exists as %s, file %s has %s",
				etlerr.ErrSchemaMismatch, f.Table, prior, f.Path, t.Schema()))
		}
		log.Printf("loader: WARNING table=%s schema changed old=%s new=%s", f.Table, prior, t.Schema())
	}

	n, err := l.repo.LoadTable(ctx, t)
	if err != nil {
		return Result{}, etlerr.Wrap(etlerr.StageLoad, f.Table, err)
	}
	res := Result{Table: f.Table, Path: f.Path, Rows: n, Schema: t.Schema(), Duration: time.Since(start)}
	log.Printf("loader: table=%s file=%s rows=%d columns=%d elapsed=%s",
		res.Table, res.Path, res.Rows, len(res.Schema), res.Duration.Truncate(time.Millisecond))
	return res, nil
}

// readFile opens f.Path and parses it. A missing path, or one naming a
// directory, is etlerr.ErrSourceNotFound.
func readFile(f File) (*table.Table, error) {
	fi, err := os.Stat(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", etlerr.ErrSourceNotFound, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", etlerr.ErrSourceNotFound, f.Path)
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer fh.Close()
	return ReadCSV(f.Table, fh, f.ReadOptions)
}
