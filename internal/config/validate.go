package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"promoetl/internal/table"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is printed but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config, e.g. "sources[2].path" or "reports[0].group_by".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownKinds = map[string]struct{}{
	"postgres": {},
	"mssql":    {},
	"sqlite":   {},
}

// ValidatePipeline lints p without touching the filesystem or any store.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels logs and metrics")
	}

	if len(p.Sources) == 0 && !p.Load.Skip {
		add(SeverityWarning, "sources", "no sources configured; reports will read whatever the operational store holds")
	}
	tables := map[string]int{}
	for i, s := range p.Sources {
		path := fmt.Sprintf("sources[%d]", i)
		if strings.TrimSpace(s.Table) == "" {
			add(SeverityError, path+".table", "table must not be empty")
		} else if prev, dup := tables[s.Table]; dup {
			add(SeverityError, path+".table", "table %s is also loaded by sources[%d]", s.Table, prev)
		} else {
			tables[s.Table] = i
		}
		if strings.TrimSpace(s.Path) == "" {
			add(SeverityError, path+".path", "path must not be empty")
		}
		if s.Delimiter != "" && utf8.RuneCountInString(s.Delimiter) != 1 {
			add(SeverityError, path+".delimiter", "delimiter must be a single character, got %q", s.Delimiter)
		}
		for col, typ := range s.Types {
			if _, err := table.ParseType(typ); err != nil {
				add(SeverityError, fmt.Sprintf("%s.types.%s", path, col), "%v", err)
			}
		}
	}

	issues = append(issues, validateStore("operational", p.Operational)...)
	issues = append(issues, validateStore("warehouse", p.Warehouse)...)
	if p.Operational.DSN == p.Warehouse.DSN && p.Operational.DSN != "" {
		add(SeverityWarning, "warehouse.dsn", "warehouse and operational stores share a DSN")
	}

	switch p.Load.OnSchemaChange {
	case "", "replace", "reject":
	default:
		add(SeverityError, "load.on_schema_change", "must be replace or reject, got %q", p.Load.OnSchemaChange)
	}

	reports := p.AllReports()
	if len(reports) == 0 {
		add(SeverityError, "reports", "no reports to build; enable builtin_reports or declare reports")
	}
	names := map[string]struct{}{}
	offset := len(reports) - len(p.Reports)
	for i, r := range reports {
		path := "builtin:" + r.Name
		if i >= offset {
			path = fmt.Sprintf("reports[%d]", i-offset)
		}
		if err := r.Validate(); err != nil {
			add(SeverityError, path, "%v", err)
			continue
		}
		if _, dup := names[r.Name]; dup {
			add(SeverityError, path+".name", "report %s is declared twice", r.Name)
		}
		names[r.Name] = struct{}{}
		if len(p.Sources) > 0 {
			for _, in := range r.Inputs() {
				if _, ok := tables[in]; !ok {
					add(SeverityWarning, path, "reads %s, which no source loads", in)
				}
			}
		}
	}
	return issues
}

func validateStore(path string, s Store) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{Severity: SeverityError, Path: path + ".kind", Message: path + ".kind must not be empty"})
	}
	if _, ok := knownKinds[strings.ToLower(s.Kind)]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if _, err := s.ConnString(); err != nil {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: err.Error()})
	}
	if s.BatchSize < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".batch_size", Message: "batch_size must not be negative"})
	}
	if s.DSN == "" && s.User != "" && s.Password == "" && strings.ToLower(s.Kind) != "sqlite" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".password",
			Message:  "no password set; supply it via the environment (e.g. " + strings.ToUpper(path) + "_PASSWORD) or .env",
		})
	}
	return issues
}
