package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's instruments. All fields may be nil when
// telemetry is disabled; recording helpers tolerate that.
type Metrics struct {
	StageExecutions metric.Int64Counter
	StageDuration   metric.Float64Histogram
	StageErrors     metric.Int64Counter
	RowsProduced    metric.Int64Counter
}

// NewMetrics creates the pipeline instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	stageExecutions, err := meter.Int64Counter(
		"derive_stage_executions_total",
		metric.WithDescription("Total number of derivation stage executions"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"derive_stage_duration_seconds",
		metric.WithDescription("Derivation stage execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageErrors, err := meter.Int64Counter(
		"derive_stage_errors_total",
		metric.WithDescription("Total number of derivation stage failures"),
	)
	if err != nil {
		return nil, err
	}

	rowsProduced, err := meter.Int64Counter(
		"derive_rows_produced_total",
		metric.WithDescription("Total derived fact rows produced"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		StageExecutions: stageExecutions,
		StageDuration:   stageDuration,
		StageErrors:     stageErrors,
		RowsProduced:    rowsProduced,
	}, nil
}

// recordStage records one stage execution.
func (m *Metrics) recordStage(ctx context.Context, stageID string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("stage.id", stageID))
	m.StageExecutions.Add(ctx, 1, attrs)
	m.StageDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.StageErrors.Add(ctx, 1, attrs)
	}
}

// RecordRows records derived fact rows produced by a run.
func (m *Metrics) RecordRows(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.RowsProduced.Add(ctx, int64(count))
}
