package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"promoetl/internal/config"
	"promoetl/internal/etlerr"
	"promoetl/internal/metrics"
	"promoetl/internal/metrics/datadog"
	"promoetl/internal/metrics/prompush"
	"promoetl/internal/pipeline"
	"promoetl/internal/render"
	"promoetl/internal/source"
	"promoetl/internal/storage"
	"promoetl/internal/table"

	// register all backends with the storage factory.
	_ "promoetl/internal/storage/all"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// flags holds the command line. Non-empty values override the config file
// and the environment.
type flags struct {
	cfgPath        string
	envFile        string
	sourceDir      string
	validate       bool
	skipLoad       bool
	print          bool
	metricsBackend string
	pushGatewayURL string
	datadogAddr    string
	verbose        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, error) {
	var f flags
	fs.StringVar(&f.cfgPath, "config", "", "pipeline config path (.json, .yaml); empty uses the built-in defaults")
	fs.StringVar(&f.envFile, "env", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&f.sourceDir, "source-dir", "", "directory holding the source CSV files (overrides SOURCE_DIR)")
	fs.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&f.skipLoad, "skip-load", false, "reuse the tables already in the operational store")
	fs.BoolVar(&f.print, "print", false, "print every built report as a table")
	fs.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway or datadog (overrides METRICS_BACKEND)")
	fs.StringVar(&f.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides PUSHGATEWAY_URL)")
	fs.StringVar(&f.datadogAddr, "datadog-addr", "", "DogStatsD address (overrides DD_DOGSTATSD_ADDR)")
	fs.BoolVar(&f.verbose, "v", false, "enable verbose logs")
	err := fs.Parse(args)
	return f, err
}

// loadPipeline resolves the configuration: defaults, then the config file,
// then the environment, then flags.
func loadPipeline(f flags, getenv func(string) string) (config.Pipeline, error) {
	p := config.Default()
	if f.cfgPath != "" {
		var err error
		if p, err = config.Load(f.cfgPath); err != nil {
			return p, err
		}
	}
	if err := config.ApplyEnv(&p, getenv); err != nil {
		return p, fmt.Errorf("environment: %w", err)
	}
	if f.sourceDir != "" {
		p.SourceDir = f.sourceDir
	}
	if f.skipLoad {
		p.Load.Skip = true
	}
	return p, nil
}

// runOptions translates the configuration into pipeline options.
func runOptions(p config.Pipeline, runID string) (pipeline.Options, error) {
	policy, err := source.ParsePolicy(p.Load.OnSchemaChange)
	if err != nil {
		return pipeline.Options{}, err
	}
	files := make([]source.File, 0, len(p.Sources))
	for _, s := range p.Sources {
		f := source.File{Table: s.Table, Path: p.SourcePath(s)}
		f.NormalizeHeaders = s.NormalizeHeaders
		if s.Delimiter != "" {
			f.Delimiter = []rune(s.Delimiter)[0]
		}
		if len(s.Types) > 0 {
			f.Types = make(map[string]table.Type, len(s.Types))
			for col, name := range s.Types {
				typ, err := table.ParseType(name)
				if err != nil {
					return pipeline.Options{}, fmt.Errorf("source %s column %s: %w", s.Table, col, err)
				}
				f.Types[col] = typ
			}
		}
		files = append(files, f)
	}
	return pipeline.Options{
		Job:           p.Job,
		RunID:         runID,
		Sources:       files,
		Policy:        policy,
		SkipLoad:      p.Load.Skip,
		Reports:       p.AllReports(),
		Concurrent:    p.Runtime.Concurrent(),
		WarehouseKind: p.Warehouse.Kind,
	}, nil
}

func storeConfig(s config.Store) (storage.Config, error) {
	dsn, err := s.ConnString()
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Kind: s.Kind, DSN: dsn, BatchSize: s.BatchSize}, nil
}

// setupMetrics installs the chosen backend and returns a function that
// flushes it at the end of the run.
func setupMetrics(f flags, job, runID string, getenv func(string) string) func() {
	name := f.metricsBackend
	if name == "" {
		name = getenv("METRICS_BACKEND")
	}
	switch name {
	case "pushgateway":
		gwURL := f.pushGatewayURL
		if gwURL == "" {
			gwURL = getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		b.Grouping("run_id", runID)
		log.Printf("metrics: backend=pushgateway url=%s job=%s", gwURL, job)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush error: %v", err)
			}
		}

	case "datadog":
		addr := f.datadogAddr
		if addr == "" {
			addr = getenv("DD_DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			GlobalTags: []string{"job:" + job, "run_id:" + runID},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=datadog addr=%s job=%s", addr, job)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: flush error: %v", err)
			}
		}

	case "", "none":
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
		return func() {}
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

// run is main without the process exit, returning the exit code.
func run(args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := flag.NewFlagSet("promoetl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f, err := parseFlags(fs, args)
	if err != nil {
		return 2
	}
	log.SetOutput(stderr)
	if f.verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	if err := config.LoadDotEnv(f.envFile); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	p, err := loadPipeline(f, getenv)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", orDefault(f.cfgPath))
		return 1
	}
	if f.validate {
		fmt.Fprintf(stdout, "configuration is valid: %s (%d reports)\n", orDefault(f.cfgPath), len(p.AllReports()))
		return 0
	}

	runID := uuid.NewString()
	opts, err := runOptions(p, runID)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	flush := setupMetrics(f, p.Job, runID, getenv)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.verbose {
		log.Printf("pipeline: operational=%s warehouse=%s", p.Operational.Redacted(), p.Warehouse.Redacted())
	}
	op, err := openStore(ctx, p.Operational)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", etlerr.Wrap(etlerr.StageConnect, "operational", err))
		return 1
	}
	defer op.Close()
	dw, err := openStore(ctx, p.Warehouse)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", etlerr.Wrap(etlerr.StageConnect, "warehouse", err))
		return 1
	}
	defer dw.Close()

	summary, runErr := pipeline.New(op, dw, opts).Run(ctx)

	if f.print {
		for _, t := range summary.Results {
			if t != nil {
				render.Report(stdout, t)
			}
		}
	}
	useColor := !color.NoColor
	if runErr != nil {
		render.Summary(stderr, summary, useColor)
		return 1
	}
	render.Summary(stdout, summary, useColor)
	return 0
}

func openStore(ctx context.Context, s config.Store) (storage.Repository, error) {
	cfg, err := storeConfig(s)
	if err != nil {
		return nil, err
	}
	return storage.New(ctx, cfg)
}

func orDefault(path string) string {
	if path == "" {
		return "<defaults>"
	}
	return path
}
