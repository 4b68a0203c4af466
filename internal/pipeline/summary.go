package pipeline

import (
	"time"

	"promoetl/internal/source"
	"promoetl/internal/table"
)

// Status is the outcome of one report within a run.
type Status string

const (
	StatusNotAttempted Status = "not attempted"
	StatusBuilt        Status = "built"
	StatusWritten      Status = "written"
	StatusFailed       Status = "failed"
)

// ReportStatus records how far one report got.
type ReportStatus struct {
	Name   string
	Status Status
	Rows   int
	// Digest is the report's fingerprint; identical inputs give identical
	// digests across runs.
	Digest string
	Err    error
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID    string
	Job      string
	Started  time.Time
	Duration time.Duration

	Loaded    []source.Result
	Extracted map[string]int

	Reports []ReportStatus
	// Results holds the built report tables in report order; nil entries
	// were not built.
	Results []*table.Table

	// Err is the error that aborted the run, if any.
	Err error
}

// OK reports whether every report was written.
func (s *Summary) OK() bool {
	if s.Err != nil {
		return false
	}
	for _, r := range s.Reports {
		if r.Status != StatusWritten {
			return false
		}
	}
	return true
}

// Count returns how many reports ended with status st.
func (s *Summary) Count(st Status) int {
	n := 0
	for _, r := range s.Reports {
		if r.Status == st {
			n++
		}
	}
	return n
}
