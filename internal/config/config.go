// Package config defines the pipeline configuration model: where the source
// files are, how to reach the operational and warehouse stores, how loads
// treat schema changes, and which reports to build.
//
// A pipeline file is JSON or YAML (chosen by extension) and is decoded over
// Default(), so every field is optional. Example (YAML, trimmed):
//
//	job: promo
//	source_dir: ./data
//	operational: { kind: postgres, host: db, database: noaat, user: etl }
//	warehouse:   { kind: postgres, host: db, database: noaat_dw, user: etl }
//	load: { on_schema_change: reject }
//	reports:
//	  - name: top_devices
//	    source: user_promo_dataset
//	    group_by: [device]
//	    sort: [{ column: count, desc: true }]
//	    limit: 5
package config

import (
	"encoding/json"
	"path/filepath"

	"promoetl/internal/report"
)

// Pipeline is the top-level configuration object.
type Pipeline struct {
	// Job labels logs and metrics.
	Job string `json:"job" yaml:"job"`

	// SourceDir resolves relative source paths.
	SourceDir string `json:"source_dir" yaml:"source_dir"`

	// Sources lists the files loaded into the operational store.
	Sources []Source `json:"sources" yaml:"sources"`

	Operational Store `json:"operational" yaml:"operational"`
	Warehouse   Store `json:"warehouse" yaml:"warehouse"`

	Load LoadConfig `json:"load" yaml:"load"`

	// Reports are built in addition to the built-in reports.
	Reports []report.Spec `json:"reports" yaml:"reports"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// Source is one delimited file and the table it is loaded into.
type Source struct {
	Table string `json:"table" yaml:"table"`
	Path  string `json:"path" yaml:"path"`

	// Delimiter is a single character; empty means ",".
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`

	// Types declares logical column types (text, integer, real, boolean,
	// timestamp). Undeclared columns are inferred.
	Types map[string]string `json:"types,omitempty" yaml:"types,omitempty"`

	// NormalizeHeaders folds header names to lower-case ASCII identifiers.
	NormalizeHeaders bool `json:"normalize_headers,omitempty" yaml:"normalize_headers,omitempty"`
}

// Store describes how to reach a database. DSN wins over the individual
// parts when set.
type Store struct {
	Kind     string `json:"kind" yaml:"kind"`
	DSN      string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode  string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`

	// Params are extra driver parameters appended to a built DSN.
	Params Options `json:"params,omitempty" yaml:"params,omitempty"`

	// BatchSize bounds rows per bulk-copy call.
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// LoadConfig controls the source loading stage.
type LoadConfig struct {
	// OnSchemaChange is "replace" (default) or "reject".
	OnSchemaChange string `json:"on_schema_change" yaml:"on_schema_change"`

	// Skip reuses the tables already in the operational store.
	Skip bool `json:"skip" yaml:"skip"`
}

// RuntimeConfig controls how reports are built.
type RuntimeConfig struct {
	// ConcurrentReports builds reports in parallel. Default true.
	ConcurrentReports *bool `json:"concurrent_reports,omitempty" yaml:"concurrent_reports,omitempty"`

	// BuiltinReports includes the four standard reports. Default true.
	BuiltinReports *bool `json:"builtin_reports,omitempty" yaml:"builtin_reports,omitempty"`
}

// Concurrent reports whether report builds run in parallel.
func (r RuntimeConfig) Concurrent() bool { return r.ConcurrentReports == nil || *r.ConcurrentReports }

// Builtins reports whether the standard reports are included.
func (r RuntimeConfig) Builtins() bool { return r.BuiltinReports == nil || *r.BuiltinReports }

// Default returns the configuration of the original promo job: the four
// source files under ./data, PostgreSQL on localhost:5432 with the noaat and
// noaat_dw databases. Passwords are never defaulted.
func Default() Pipeline {
	return Pipeline{
		Job:       "promo",
		SourceDir: "data",
		Sources: []Source{
			{Table: report.TablePromoCodes, Path: report.TablePromoCodes + ".csv"},
			{Table: report.TableUsersTest, Path: report.TableUsersTest + ".csv"},
			{Table: report.TableUsers, Path: report.TableUsers + ".csv"},
			{Table: report.TableUsage, Path: report.TableUsage + ".csv"},
		},
		Operational: Store{Kind: "postgres", Host: "localhost", Port: 5432, Database: "noaat", User: "postgres", SSLMode: "disable"},
		Warehouse:   Store{Kind: "postgres", Host: "localhost", Port: 5432, Database: "noaat_dw", User: "postgres", SSLMode: "disable"},
		Load:        LoadConfig{OnSchemaChange: "replace"},
	}
}

// AllReports returns the reports to build, built-ins first.
func (p Pipeline) AllReports() []report.Spec {
	var out []report.Spec
	if p.Runtime.Builtins() {
		out = append(out, report.Builtins()...)
	}
	return append(out, p.Reports...)
}

// SourcePath resolves s.Path against the pipeline's SourceDir.
func (p Pipeline) SourcePath(s Source) string {
	if s.Path == "" || filepath.IsAbs(s.Path) || p.SourceDir == "" {
		return s.Path
	}
	return filepath.Join(p.SourceDir, s.Path)
}

// Options holds driver parameters appended to an assembled DSN's query string.
type Options map[string]any

// UnmarshalJSON decodes a missing or null object to an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
