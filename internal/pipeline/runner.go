package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Runner executes registered stages in dependency order. The run is a
// single batch: there is no retry policy because every stage is a pure
// function of its inputs, so re-running the whole batch is the retry
// mechanism. A stage failure aborts the run (only structural input
// violations fail stages; row-scoped conditions degrade to nulls inside the
// stages themselves).
type Runner struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// NewRunner creates a runner. tracer and metrics may be nil.
func NewRunner(logger *slog.Logger, tracer trace.Tracer, metrics *Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	return &Runner{logger: logger, tracer: tracer, metrics: metrics}
}

// Run executes every stage in the registry in topological order and returns
// the per-stage results. On failure the remaining stages are recorded as
// skipped and the stage error is returned.
func (r *Runner) Run(ctx context.Context, registry *Registry, state *RunState) ([]StageResult, error) {
	ordered, err := registry.DependencyOrder()
	if err != nil {
		return nil, err
	}

	ctx, runSpan := r.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", state.RunID()),
			attribute.Int("stages", len(ordered)),
		))
	defer runSpan.End()

	r.logger.InfoContext(ctx, "starting derivation run",
		slog.String("run_id", state.RunID()),
		slog.Int("stages", len(ordered)))

	results := make([]StageResult, 0, len(ordered))
	runStart := time.Now()

	for i, stage := range ordered {
		if err := ctx.Err(); err != nil {
			for _, skipped := range ordered[i:] {
				results = append(results, StageResult{
					ID:     skipped.ID(),
					Name:   skipped.Name(),
					Status: StageSkipped,
					Error:  "run cancelled",
				})
			}
			runSpan.SetStatus(codes.Error, "run cancelled")
			return results, &StageError{StageID: stage.ID(), Err: err}
		}

		result, err := r.runStage(ctx, stage, state)
		results = append(results, result)
		if err != nil {
			for _, skipped := range ordered[i+1:] {
				results = append(results, StageResult{
					ID:     skipped.ID(),
					Name:   skipped.Name(),
					Status: StageSkipped,
					Error:  "earlier stage failed",
				})
			}
			runSpan.SetStatus(codes.Error, err.Error())
			return results, err
		}
	}

	runSpan.SetStatus(codes.Ok, "")
	r.logger.InfoContext(ctx, "derivation run complete",
		slog.String("run_id", state.RunID()),
		slog.Duration("duration", time.Since(runStart)))

	return results, nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, state *RunState) (StageResult, error) {
	ctx, span := r.tracer.Start(ctx, "stage."+stage.ID(),
		trace.WithAttributes(attribute.String("stage.name", stage.Name())))
	defer span.End()

	r.logger.InfoContext(ctx, "executing stage",
		slog.String("stage", stage.ID()),
		slog.String("name", stage.Name()))

	start := time.Now()
	err := stage.Execute(ctx, state)
	duration := time.Since(start)

	r.metrics.recordStage(ctx, stage.ID(), duration, err)

	result := StageResult{
		ID:       stage.ID(),
		Name:     stage.Name(),
		Duration: duration,
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.Status = StageFailed
		result.Error = err.Error()
		r.logger.ErrorContext(ctx, "stage failed",
			slog.String("stage", stage.ID()),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return result, &StageError{StageID: stage.ID(), Err: err}
	}

	result.Status = StageCompleted
	r.logger.InfoContext(ctx, "stage completed",
		slog.String("stage", stage.ID()),
		slog.Duration("duration", duration))
	return result, nil
}
