// Package impute fills gaps in scalar metrics from a designated baseline
// observation and a period-indexed adjustment factor. Extrapolation is
// defined backward from the baseline only; periods after the baseline with
// no observation stay null. That is a documented scope limit, not an
// oversight: the adjustment factors anchor on the baseline and carry no
// meaning past it.
package impute

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"metrocli/internal/errors"
	"metrocli/pkg/contracts/domain"
)

// baselineFactorTolerance bounds how far factor(baseline) may drift from 1.0
// before the factor table is considered malformed.
const baselineFactorTolerance = 1e-9

// Imputer fills one or more metrics against a single baseline period and a
// shared adjustment factor table.
type Imputer struct {
	logger   *slog.Logger
	baseline domain.Period
	factors  map[domain.Period]float64
	workers  int
}

// NewImputer validates the factor table and builds an imputer. The baseline
// period's factor must be present and exactly 1.0; anything else means the
// table was built against a different anchor and every imputed value would
// be silently wrong. workers caps the fill parallelism; zero means one
// goroutine per CPU.
func NewImputer(logger *slog.Logger, baseline domain.Period, factors []domain.AdjustmentFactor, workers int) (*Imputer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	byPeriod := make(map[domain.Period]float64, len(factors))
	for _, f := range factors {
		if f.Factor <= 0 {
			return nil, errors.Structural("adjustment_factors", fmt.Sprintf("%d", f.Period),
				fmt.Errorf("factor must be positive, got %v", f.Factor))
		}
		byPeriod[f.Period] = f.Factor
	}

	base, ok := byPeriod[baseline]
	if !ok {
		return nil, errors.Structural("adjustment_factors", fmt.Sprintf("%d", baseline), errors.ErrBaselineFactor)
	}
	if diff := base - 1.0; diff > baselineFactorTolerance || diff < -baselineFactorTolerance {
		return nil, errors.Structural("adjustment_factors", fmt.Sprintf("%d", baseline), errors.ErrBaselineFactor)
	}

	return &Imputer{logger: logger, baseline: baseline, factors: byPeriod, workers: workers}, nil
}

// Baseline returns the designated baseline period.
func (im *Imputer) Baseline() domain.Period {
	return im.baseline
}

// Result is one filled observation with its provenance flag. IsImputed is
// true only when the value was actually computed from the baseline: an
// unattempted imputation is a null with IsImputed=false, never a false
// "success".
type Result struct {
	EntityID  string
	Period    domain.Period
	Metric    string
	Value     domain.Value
	IsImputed bool
}

// Impute produces one Result per (entity, metric, period) for every entity
// and metric present in the observations, across all given periods.
//
// Per entity and metric: an observed value wins as-is; a suppressed source
// value propagates as suppressed (never recomputed, never coerced); a gap
// before the baseline with a baseline observation and a known factor becomes
// baseline x factor(period); everything else stays null.
func (im *Imputer) Impute(ctx context.Context, observations []domain.TemporalObservation, periods []domain.Period) ([]Result, error) {
	sorted := make([]domain.Period, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	type seriesKey struct {
		entityID string
		metric   string
	}
	series := make(map[seriesKey]map[domain.Period]domain.Value)
	for _, obs := range observations {
		k := seriesKey{obs.EntityID, obs.Metric}
		if series[k] == nil {
			series[k] = make(map[domain.Period]domain.Value)
		}
		series[k][obs.Period] = obs.Value
	}

	keys := make([]seriesKey, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityID != keys[j].entityID {
			return keys[i].entityID < keys[j].entityID
		}
		return keys[i].metric < keys[j].metric
	})

	// Each (entity, metric) series is independent; fill them in parallel.
	perSeries := make([][]Result, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perSeries[i] = im.fillSeries(k.entityID, k.metric, series[k], sorted)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("impute values: %w", err)
	}

	var results []Result
	imputed := 0
	for _, rs := range perSeries {
		for _, r := range rs {
			if r.IsImputed {
				imputed++
			}
		}
		results = append(results, rs...)
	}

	im.logger.InfoContext(ctx, "imputed metric series",
		slog.Int("series", len(keys)),
		slog.Int("rows", len(results)),
		slog.Int("imputed", imputed),
		slog.Int("baseline_period", int(im.baseline)))

	return results, nil
}

func (im *Imputer) fillSeries(entityID, metric string, observed map[domain.Period]domain.Value, periods []domain.Period) []Result {
	baselineValue, hasBaseline := observed[im.baseline].Float()

	results := make([]Result, 0, len(periods))
	for _, p := range periods {
		r := Result{EntityID: entityID, Period: p, Metric: metric, Value: domain.MissingValue()}

		src, present := observed[p]
		switch {
		case present && src.IsObserved():
			r.Value = src
		case present && src.IsSuppressed():
			// Suppression is a deliberate upstream decision; it propagates
			// untouched rather than being overwritten by an estimate.
			r.Value = src
		case hasBaseline && p < im.baseline:
			if factor, ok := im.factors[p]; ok {
				r.Value = domain.ObservedValue(baselineValue * factor)
				r.IsImputed = true
			}
		}

		results = append(results, r)
	}
	return results
}
