// Package allocate disaggregates coarse-unit values (survey zones, leagues)
// to fine-grained entities through a weighted many-to-many crosswalk.
package allocate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"metrocli/internal/errors"
	"metrocli/pkg/contracts/domain"
)

// Mode selects the allocation semantics for a metric.
type Mode int

const (
	// Flow metrics are counts and totals (unit inventory): the fine value
	// is the weighted sum of contributing coarse values.
	Flow Mode = iota
	// Intensity metrics are rates and averages (vacancy rate): the fine
	// value is the weight-normalized average of contributing coarse values,
	// not a sum.
	Intensity
)

// String returns the string representation of the mode
func (m Mode) String() string {
	if m == Intensity {
		return "intensity"
	}
	return "flow"
}

// Metric names a coarse metric and its allocation mode.
type Metric struct {
	Name string
	Mode Mode
}

// Allocator holds the validated crosswalk for one run.
type Allocator struct {
	logger  *slog.Logger
	byFine  map[string][]domain.CrosswalkRow
	workers int
}

// ValidateWeights checks the structural crosswalk invariant once, up front:
// for every coarse unit, the weights over its fine rows must sum to 1
// within epsilon. A zero sum means the allocation input itself is malformed
// and is batch-fatal; discovering it row-by-row mid-computation would waste
// the run and bury the report.
func ValidateWeights(cw domain.Crosswalk, epsilon float64) error {
	byCoarse := cw.ByCoarse()

	coarseIDs := make([]string, 0, len(byCoarse))
	for id := range byCoarse {
		coarseIDs = append(coarseIDs, id)
	}
	sort.Strings(coarseIDs)

	for _, id := range coarseIDs {
		sum := 0.0
		for _, row := range byCoarse[id] {
			sum += row.Weight
		}
		if sum == 0 {
			return errors.Structural("crosswalk", id, errors.ErrZeroWeightSum)
		}
		if math.Abs(sum-1.0) > epsilon {
			return errors.Structural("crosswalk", id,
				fmt.Errorf("%w: sum %.6f", errors.ErrWeightSumOutOfTolerance, sum))
		}
	}
	return nil
}

// NewAllocator validates the crosswalk and builds an allocator. workers caps
// the per-fine-unit parallelism; zero means one goroutine per CPU.
func NewAllocator(logger *slog.Logger, cw domain.Crosswalk, epsilon float64, workers int) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if err := ValidateWeights(cw, epsilon); err != nil {
		return nil, err
	}
	return &Allocator{logger: logger, byFine: cw.ByFine(), workers: workers}, nil
}

// Result is one allocated fine-unit value. IsAllocated is false when the
// fine unit has no crosswalk rows or no contributing coarse value was
// observed; the value is then null, never a silent zero.
type Result struct {
	FineID      string
	Period      domain.Period
	Metric      string
	Value       domain.Value
	IsAllocated bool
}

// Allocate computes the fine-unit value of one metric for every fine unit
// and period. The pass is linear and order-independent: each fine unit's
// result depends only on its own contributing coarse set, so fine units are
// processed in parallel.
func (a *Allocator) Allocate(ctx context.Context, observations []domain.CoarseObservation, metric Metric, fineIDs []string, periods []domain.Period) ([]Result, error) {
	byPeriod := make(map[domain.Period]map[string]domain.Value)
	for _, obs := range observations {
		if obs.Metric != metric.Name {
			continue
		}
		if byPeriod[obs.Period] == nil {
			byPeriod[obs.Period] = make(map[string]domain.Value)
		}
		byPeriod[obs.Period][obs.CoarseID] = obs.Value
	}

	sortedPeriods := make([]domain.Period, len(periods))
	copy(sortedPeriods, periods)
	sort.Slice(sortedPeriods, func(i, j int) bool { return sortedPeriods[i] < sortedPeriods[j] })

	sortedFine := make([]string, len(fineIDs))
	copy(sortedFine, fineIDs)
	sort.Strings(sortedFine)

	perFine := make([][]Result, len(sortedFine))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, fineID := range sortedFine {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := a.byFine[fineID]
			results := make([]Result, 0, len(sortedPeriods))
			for _, p := range sortedPeriods {
				r := Result{FineID: fineID, Period: p, Metric: metric.Name, Value: domain.MissingValue()}
				if len(rows) > 0 {
					r.Value = allocateOne(rows, byPeriod[p], metric.Mode)
					r.IsAllocated = r.Value.IsObserved()
				}
				results = append(results, r)
			}
			perFine[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("allocate %s: %w", metric.Name, err)
	}

	var results []Result
	allocated := 0
	for _, rs := range perFine {
		for _, r := range rs {
			if r.IsAllocated {
				allocated++
			}
		}
		results = append(results, rs...)
	}

	a.logger.InfoContext(ctx, "allocated coarse metric to fine units",
		slog.String("metric", metric.Name),
		slog.String("mode", metric.Mode.String()),
		slog.Int("fine_units", len(sortedFine)),
		slog.Int("rows", len(results)),
		slog.Int("allocated", allocated))

	return results, nil
}

// allocateOne reduces one fine unit's contributing coarse set for one
// period. Coarse values that are missing or suppressed contribute nothing;
// when no contribution is observed at all the result is null.
func allocateOne(rows []domain.CrosswalkRow, coarseValues map[string]domain.Value, mode Mode) domain.Value {
	weightedSum := 0.0
	weightSum := 0.0
	observed := false

	for _, row := range rows {
		v, ok := coarseValues[row.CoarseID].Float()
		if !ok {
			continue
		}
		weightedSum += row.Weight * v
		weightSum += row.Weight
		observed = true
	}

	if !observed {
		return domain.MissingValue()
	}

	switch mode {
	case Intensity:
		if weightSum == 0 {
			return domain.MissingValue()
		}
		return domain.ObservedValue(weightedSum / weightSum)
	default:
		return domain.ObservedValue(weightedSum)
	}
}
