// Command derive runs one batch derivation: it loads the input tables,
// executes the stage graph, and publishes an immutable output snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"metrocli/internal/allocate"
	"metrocli/internal/composite"
	"metrocli/internal/config"
	"metrocli/internal/exporter"
	"metrocli/internal/facts"
	"metrocli/internal/hierarchy"
	"metrocli/internal/impute"
	"metrocli/internal/infrastructure"
	"metrocli/internal/ingest"
	"metrocli/internal/pipeline"
	"metrocli/internal/resolve"
	transporthttp "metrocli/internal/transport/http"
	"metrocli/pkg/contracts/domain"
)

func main() {
	inDir := flag.String("in", "", "input directory containing the run's CSV tables and census workbooks (defaults to configured paths.input_dir)")
	outDir := flag.String("out", "", "output directory for snapshots (defaults to configured paths.output_dir)")
	listen := flag.String("listen", "", "optional address for the status/metrics listener, e.g. :8090 (defaults to configured server.addr)")
	configFile := flag.String("config", "config.yaml", "optional YAML config file")
	baseline := flag.Int("baseline", 0, "baseline period for backward imputation (defaults to configured derive.baseline_period, else the factor table's anchor)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *inDir == "" {
		*inDir = cfg.Paths.InputDir
	}
	if *outDir == "" {
		*outDir = cfg.Paths.OutputDir
	}
	if *listen == "" {
		*listen = cfg.Server.Addr
	}
	if *baseline == 0 {
		*baseline = cfg.Derive.BaselinePeriod
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := infrastructure.InitializeTelemetry(ctx, infrastructure.TelemetryConfig{
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		Environment:    cfg.Telemetry.Environment,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	var metrics *pipeline.Metrics
	if telemetry.Meter != nil {
		if metrics, err = pipeline.NewMetrics(telemetry.Meter); err != nil {
			logger.Error("failed to create pipeline metrics", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	state := pipeline.NewRunState()
	store := transporthttp.NewStatusStore(state.RunID())

	if *listen != "" {
		server := transporthttp.NewServer(transporthttp.ServerConfig{
			Addr:            *listen,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, store, telemetry.PrometheusHTTP, logger)
		server.Start()
		defer func() {
			if err := server.Stop(context.Background()); err != nil {
				logger.Warn("status listener shutdown", slog.String("error", err.Error()))
			}
		}()
	}

	registry := pipeline.NewRegistry()
	if err := registerStages(registry, cfg, logger, *inDir, *outDir, *baseline); err != nil {
		logger.Error("failed to register stages", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner := pipeline.NewRunner(logger, telemetry.Tracer, metrics)

	store.SetPhase(transporthttp.PhaseRunning)
	results, runErr := runner.Run(ctx, registry, state)
	store.SetResults(results, runErr)

	for _, r := range results {
		fmt.Printf("%-22s %-10s %s\n", r.ID, r.Status, r.Duration.Round(time.Millisecond))
	}

	if runErr != nil {
		logger.Error("derivation run failed",
			slog.String("run_id", state.RunID()),
			slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	metrics.RecordRows(ctx, len(state.Facts()))
	logger.InfoContext(ctx, "snapshot published",
		slog.String("run_id", state.RunID()),
		slog.String("snapshot_dir", state.SnapshotDir()),
		slog.Int("derived_facts", len(state.Facts())))
	fmt.Printf("snapshot: %s\n", state.SnapshotDir())
}

// registerStages declares the derivation graph. Stage IDs double as
// dependency references.
func registerStages(registry *pipeline.Registry, cfg *config.Config, logger *slog.Logger, inDir, outDir string, baseline int) error {
	stages := []pipeline.Stage{
		pipeline.NewFuncStage("load-dimensions", "Load Input Tables", nil,
			func(ctx context.Context, state *pipeline.RunState) error {
				bundle, err := ingest.LoadDir(ctx, logger, inDir)
				if err != nil {
					return err
				}
				if err := ingest.NewValidator().ValidateBundle(bundle); err != nil {
					return err
				}
				state.SetBundle(bundle)
				return nil
			}),

		pipeline.NewFuncStage("resolve-keys", "Resolve Organization Keys", []string{"load-dimensions"},
			func(ctx context.Context, state *pipeline.RunState) error {
				b := state.Bundle()
				keys, err := resolve.NewResolver(logger, cfg.Derive.Workers).Resolve(ctx, b.EntityIDs(), b.Periods(), b.KeyMappings)
				if err != nil {
					return err
				}
				state.SetKeys(keys)
				return nil
			}),

		pipeline.NewFuncStage("impute-values", "Impute Income Series", []string{"resolve-keys"},
			func(ctx context.Context, state *pipeline.RunState) error {
				b := state.Bundle()
				base := domain.Period(baseline)
				if base == 0 {
					base = defaultBaseline(b.Factors, b.Observations)
					logger.InfoContext(ctx, "no baseline configured, derived one",
						slog.Int("baseline_period", int(base)))
				}
				imputer, err := impute.NewImputer(logger, base, b.Factors, cfg.Derive.Workers)
				if err != nil {
					return err
				}
				results, err := imputer.Impute(ctx, b.Observations, b.Periods())
				if err != nil {
					return err
				}
				state.SetImputed(results)
				return nil
			}),

		pipeline.NewFuncStage("allocate-zones", "Allocate Zone Metrics", []string{"resolve-keys"},
			func(ctx context.Context, state *pipeline.RunState) error {
				b := state.Bundle()
				if len(b.CoarseObservations) == 0 {
					logger.InfoContext(ctx, "no zone observations, skipping allocation")
					return nil
				}
				allocator, err := allocate.NewAllocator(logger, b.Crosswalk, cfg.Derive.WeightTolerance, cfg.Derive.Workers)
				if err != nil {
					return err
				}
				metrics := []allocate.Metric{
					{Name: facts.MetricRentalUnits, Mode: allocate.Flow},
					{Name: facts.MetricVacancyRate, Mode: allocate.Intensity},
				}
				for _, m := range metrics {
					results, err := allocator.Allocate(ctx, b.CoarseObservations, m, b.EntityIDs(), b.Periods())
					if err != nil {
						return err
					}
					state.AppendAllocated(results)
				}
				return nil
			}),

		pipeline.NewFuncStage("aggregate-hierarchy", "Aggregate Category Hierarchy", []string{"load-dimensions"},
			func(ctx context.Context, state *pipeline.RunState) error {
				b := state.Bundle()
				summary, err := hierarchy.NewAggregator(logger, cfg.Derive.DiversityCategory, cfg.Derive.Workers).Aggregate(ctx, b.CategoryNodes)
				if err != nil {
					return err
				}
				state.SetSummary(summary)
				return nil
			}),

		pipeline.NewFuncStage("assemble-facts", "Assemble Derived Facts",
			[]string{"impute-values", "allocate-zones", "aggregate-hierarchy"},
			func(ctx context.Context, state *pipeline.RunState) error {
				b := state.Bundle()
				in := facts.Inputs{
					EntityIDs: b.EntityIDs(),
					Periods:   b.Periods(),
					Keys:      state.Keys(),
					Imputed:   state.Imputed(),
					Allocated: state.Allocated(),
				}
				if summary := state.Summary(); summary != nil {
					in.Diversity = summary.Diversity
				}
				state.SetFacts(facts.NewAssembler(logger).Assemble(ctx, in))
				return nil
			}),

		pipeline.NewFuncStage("build-composite", "Build Composite Index", []string{"assemble-facts"},
			func(ctx context.Context, state *pipeline.RunState) error {
				builder, err := composite.NewBuilder(logger, facts.DefaultComposite())
				if err != nil {
					return err
				}
				rows := state.Facts()
				facts.ScoreComposite(ctx, logger, builder, rows)
				state.SetFacts(rows)
				return nil
			}),

		pipeline.NewFuncStage("export-snapshot", "Export Snapshot", []string{"build-composite"},
			func(ctx context.Context, state *pipeline.RunState) error {
				var category []domain.CategoryFact
				if summary := state.Summary(); summary != nil {
					category = summary.Facts
				}
				dir, err := exporter.WriteSnapshot(ctx, logger, outDir, state.Facts(), category)
				if err != nil {
					return err
				}
				state.SetSnapshotDir(dir)
				return nil
			}),
	}

	for _, s := range stages {
		if err := registry.Register(s); err != nil {
			return err
		}
	}
	return registry.ValidateDependencies()
}

// defaultBaseline picks a baseline when none is configured: the period the
// adjustment factor table anchors on (its factor is 1.0), else the latest
// observed period. Defaulting to the earliest period would leave nothing
// before the baseline and turn backward imputation into a no-op.
func defaultBaseline(factors []domain.AdjustmentFactor, observations []domain.TemporalObservation) domain.Period {
	var anchor domain.Period
	for _, f := range factors {
		if math.Abs(f.Factor-1.0) <= 1e-9 && f.Period > anchor {
			anchor = f.Period
		}
	}
	if anchor != 0 {
		return anchor
	}

	var latest domain.Period
	for _, o := range observations {
		if o.Period > latest {
			latest = o.Period
		}
	}
	return latest
}
