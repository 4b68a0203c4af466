// Package metrics records pipeline metrics through a pluggable backend.
//
// The default backend is a no-op, so instrumentation calls are always safe.
// Concrete backends live in subpackages (prompush, datadog) and are installed
// once at startup with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the pipeline.
const (
	StageTotal    = "promoetl_stage_total"
	StageDuration = "promoetl_stage_duration_seconds"
	RowsTotal     = "promoetl_rows_total"
	BatchesTotal  = "promoetl_batches_total"
)

// Row kinds used with RecordRows.
const (
	RowsLoaded    = "loaded"
	RowsExtracted = "extracted"
	RowsReported  = "reported"
	RowsWritten   = "written"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStage counts one execution of a pipeline stage against an object
// (table or report) and records its latency.
func RecordStage(job, stage, object string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"object": object,
		"status": status,
	}
	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDuration, d.Seconds(), lbls)
}

// RecordRows adds n rows of the given kind (RowsLoaded, RowsWritten, ...).
func RecordRows(job, kind string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches counts bulk-copy batches flushed into a table.
func RecordBatches(table string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(n), Labels{
		"table": table,
	})
}
