// Package pipeline runs one full load → extract → build → write cycle.
//
// Stages run in order and any failure aborts the run. Report builds are
// independent and may run concurrently; writes are sequential and only start
// once every report has been built, so a failing build publishes nothing.
package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"promoetl/internal/etlerr"
	"promoetl/internal/extract"
	"promoetl/internal/metrics"
	"promoetl/internal/report"
	"promoetl/internal/source"
	"promoetl/internal/storage"
	"promoetl/internal/table"
	"promoetl/internal/warehouse"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options configure a Runner.
type Options struct {
	Job string

	// RunID labels logs and the summary; empty generates a UUID.
	RunID string

	// Sources are loaded into the operational store unless SkipLoad is set.
	Sources  []source.File
	Policy   source.Policy
	SkipLoad bool

	Reports []report.Spec

	// Concurrent builds reports in parallel.
	Concurrent bool

	// WarehouseKind selects the DDL dialect for warehouse tables.
	WarehouseKind string
}

// Runner owns one pipeline configuration. The stores are not closed by the
// Runner.
type Runner struct {
	op   storage.Repository
	dw   storage.Repository
	opts Options

	newRunID func() string
}

// New returns a Runner reading and loading op and writing dw.
func New(op, dw storage.Repository, opts Options) *Runner {
	return &Runner{op: op, dw: dw, opts: opts, newRunID: uuid.NewString}
}

// Run executes the pipeline. The returned Summary is never nil and reports
// per-report status even when err is non-nil.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := r.opts.RunID
	if runID == "" {
		runID = r.newRunID()
	}
	s := &Summary{
		RunID:   runID,
		Job:     r.opts.Job,
		Started: time.Now(),
		Reports: make([]ReportStatus, len(r.opts.Reports)),
		Results: make([]*table.Table, len(r.opts.Reports)),
	}
	for i, spec := range r.opts.Reports {
		s.Reports[i] = ReportStatus{Name: spec.Name, Status: StatusNotAttempted}
	}
	log.Printf("pipeline: run_id=%s job=%s sources=%d reports=%d skip_load=%v",
		s.RunID, s.Job, len(r.opts.Sources), len(r.opts.Reports), r.opts.SkipLoad)

	err := r.run(ctx, s)
	s.Duration = time.Since(s.Started)
	s.Err = err
	if err != nil {
		log.Printf("pipeline: run_id=%s FAILED after %s: %v", s.RunID, s.Duration.Truncate(time.Millisecond), err)
		return s, err
	}
	log.Printf("pipeline: run_id=%s done in %s written=%d", s.RunID, s.Duration.Truncate(time.Millisecond), s.Count(StatusWritten))
	return s, nil
}

func (r *Runner) run(ctx context.Context, s *Summary) error {
	if !r.opts.SkipLoad {
		if err := r.load(ctx, s); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return etlerr.Wrap(etlerr.StageExtract, "", err)
	}
	inputs, err := r.extract(ctx, s)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return etlerr.Wrap(etlerr.StageBuild, "", err)
	}
	if err := r.build(ctx, s, inputs); err != nil {
		return err
	}
	return r.write(ctx, s)
}

func (r *Runner) load(ctx context.Context, s *Summary) error {
	loader := source.NewLoader(r.op, r.opts.Policy)
	start := time.Now()
	results, err := loader.Load(ctx, r.opts.Sources)
	s.Loaded = results
	for _, res := range results {
		metrics.RecordStage(r.opts.Job, etlerr.StageLoad, res.Table, nil, res.Duration)
		metrics.RecordRows(r.opts.Job, metrics.RowsLoaded, res.Rows)
	}
	if err != nil {
		metrics.RecordStage(r.opts.Job, etlerr.StageLoad, failedObject(err), err, time.Since(start))
		return err
	}
	return nil
}

// extract reads every table the reports need. Source tables are required;
// join tables that do not exist are left out of the inputs, which the
// builder treats as an absent right-hand side.
func (r *Runner) extract(ctx context.Context, s *Summary) (map[string]*table.Table, error) {
	var required, optional []string
	for _, spec := range r.opts.Reports {
		required = append(required, spec.Source)
		if spec.Join != nil {
			optional = append(optional, spec.Join.Table)
		}
	}
	ex := extract.New(r.op)
	inputs := map[string]*table.Table{}
	s.Extracted = map[string]int{}

	record := func(name string, t *table.Table, err error, d time.Duration) {
		metrics.RecordStage(r.opts.Job, etlerr.StageExtract, name, err, d)
		if t != nil {
			inputs[name] = t
			s.Extracted[name] = t.Len()
			metrics.RecordRows(r.opts.Job, metrics.RowsExtracted, int64(t.Len()))
		}
	}
	for _, name := range extract.Distinct(required) {
		start := time.Now()
		t, err := ex.Extract(ctx, name)
		record(name, t, err, time.Since(start))
		if err != nil {
			return nil, err
		}
	}
	for _, name := range extract.Distinct(optional) {
		if _, done := inputs[name]; done {
			continue
		}
		start := time.Now()
		t, _, err := ex.ExtractOptional(ctx, name)
		record(name, t, err, time.Since(start))
		if err != nil {
			return nil, err
		}
	}
	return inputs, nil
}

func (r *Runner) build(ctx context.Context, s *Summary, inputs map[string]*table.Table) error {
	var mu sync.Mutex
	buildOne := func(i int) error {
		spec := r.opts.Reports[i]
		start := time.Now()
		out, err := report.Build(spec, inputs)
		d := time.Since(start)
		metrics.RecordStage(r.opts.Job, etlerr.StageBuild, spec.Name, err, d)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.Reports[i].Status = StatusFailed
			s.Reports[i].Err = err
			log.Printf("report: name=%s FAILED: %v", spec.Name, err)
			return err
		}
		s.Results[i] = out
		s.Reports[i].Status = StatusBuilt
		s.Reports[i].Rows = out.Len()
		s.Reports[i].Digest = out.FingerprintHex()
		metrics.RecordRows(r.opts.Job, metrics.RowsReported, int64(out.Len()))
		log.Printf("report: name=%s rows=%d digest=%s elapsed=%s",
			spec.Name, out.Len(), s.Reports[i].Digest, d.Truncate(time.Microsecond))
		return nil
	}

	if !r.opts.Concurrent {
		for i := range r.opts.Reports {
			if err := ctx.Err(); err != nil {
				return etlerr.Wrap(etlerr.StageBuild, r.opts.Reports[i].Name, err)
			}
			if err := buildOne(i); err != nil {
				return err
			}
		}
		return nil
	}

	// Inputs are shared read-only between builds.
	g, gctx := errgroup.WithContext(ctx)
	for i := range r.opts.Reports {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return etlerr.Wrap(etlerr.StageBuild, r.opts.Reports[i].Name, err)
			}
			return buildOne(i)
		})
	}
	return g.Wait()
}

func (r *Runner) write(ctx context.Context, s *Summary) error {
	w := warehouse.New(r.dw, r.opts.WarehouseKind)

	// Every warehouse table exists before any is filled.
	for i, spec := range r.opts.Reports {
		if err := w.Ensure(ctx, s.Results[i], spec.GroupBy); err != nil {
			s.Reports[i].Status = StatusFailed
			s.Reports[i].Err = err
			metrics.RecordStage(r.opts.Job, etlerr.StageWrite, spec.Name, err, 0)
			return err
		}
	}
	for i, spec := range r.opts.Reports {
		if err := ctx.Err(); err != nil {
			return etlerr.Wrap(etlerr.StageWrite, spec.Name, err)
		}
		start := time.Now()
		n, err := w.Write(ctx, s.Results[i], spec.GroupBy)
		metrics.RecordStage(r.opts.Job, etlerr.StageWrite, spec.Name, err, time.Since(start))
		if err != nil {
			s.Reports[i].Status = StatusFailed
			s.Reports[i].Err = err
			return err
		}
		s.Reports[i].Status = StatusWritten
		metrics.RecordRows(r.opts.Job, metrics.RowsWritten, n)
	}
	return nil
}

// failedObject returns the table, file or report a stage error names.
func failedObject(err error) string {
	var se *etlerr.StageError
	if errors.As(err, &se) {
		return se.Object
	}
	return ""
}
