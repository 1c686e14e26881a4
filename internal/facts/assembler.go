// Package facts merges the derivation components' outputs into the
// published DerivedFact table and scores the composite index over it.
package facts

import (
	"context"
	"log/slog"
	"sort"

	"metrocli/internal/allocate"
	"metrocli/internal/hierarchy"
	"metrocli/internal/impute"
	"metrocli/internal/resolve"
	"metrocli/pkg/contracts/domain"
)

// Metric names recognized by the fact schema. The imputer and allocator are
// generic over metric names; these constants bind them to DerivedFact
// columns.
const (
	MetricMedianIncome = "median_income"
	MetricRentalUnits  = "rental_units"
	MetricVacancyRate  = "vacancy_rate"
)

// Assembler builds DerivedFact rows. Stateless across runs.
type Assembler struct {
	logger *slog.Logger
}

// NewAssembler creates an assembler with the given logger.
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Inputs collects the component outputs merged into the fact table.
type Inputs struct {
	EntityIDs []string
	Periods   []domain.Period
	Keys      *resolve.ResolvedKeys
	Imputed   []impute.Result
	Allocated []allocate.Result
	Diversity map[hierarchy.EntityPeriod]domain.Value
}

// Assemble produces exactly one DerivedFact row per (entity, period), in
// deterministic order. Missing component outputs leave the corresponding
// columns null with their provenance flags false.
func (a *Assembler) Assemble(ctx context.Context, in Inputs) []domain.DerivedFact {
	type key struct {
		entityID string
		period   domain.Period
	}

	imputed := make(map[key]impute.Result)
	for _, r := range in.Imputed {
		if r.Metric == MetricMedianIncome {
			imputed[key{r.EntityID, r.Period}] = r
		}
	}

	allocated := make(map[key]map[string]allocate.Result)
	for _, r := range in.Allocated {
		k := key{r.FineID, r.Period}
		if allocated[k] == nil {
			allocated[k] = make(map[string]allocate.Result)
		}
		allocated[k][r.Metric] = r
	}

	entityIDs := make([]string, len(in.EntityIDs))
	copy(entityIDs, in.EntityIDs)
	sort.Strings(entityIDs)

	periods := make([]domain.Period, len(in.Periods))
	copy(periods, in.Periods)
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })

	facts := make([]domain.DerivedFact, 0, len(entityIDs)*len(periods))
	for _, id := range entityIDs {
		for _, p := range periods {
			k := key{id, p}
			f := domain.DerivedFact{
				EntityID:       id,
				Period:         p,
				MedianIncome:   domain.MissingValue(),
				RentalUnits:    domain.MissingValue(),
				VacancyRate:    domain.MissingValue(),
				DiversityIndex: domain.MissingValue(),
				CompositeScore: domain.MissingValue(),
			}

			if in.Keys != nil {
				if org, ok := in.Keys.Lookup(id, p); ok {
					f.OrganizationID = org
					f.KeyResolved = true
				}
			}
			if r, ok := imputed[k]; ok {
				f.MedianIncome = r.Value
				f.IsImputed = r.IsImputed
			}
			if byMetric, ok := allocated[k]; ok {
				if r, ok := byMetric[MetricRentalUnits]; ok {
					f.RentalUnits = r.Value
					f.IsAllocated = f.IsAllocated || r.IsAllocated
				}
				if r, ok := byMetric[MetricVacancyRate]; ok {
					f.VacancyRate = r.Value
					f.IsAllocated = f.IsAllocated || r.IsAllocated
				}
			}
			if in.Diversity != nil {
				if v, ok := in.Diversity[hierarchy.EntityPeriod{EntityID: id, Period: p}]; ok {
					f.DiversityIndex = v
				}
			}

			facts = append(facts, f)
		}
	}

	a.logger.InfoContext(ctx, "assembled derived facts",
		slog.Int("entities", len(entityIDs)),
		slog.Int("periods", len(periods)),
		slog.Int("rows", len(facts)))

	return facts
}
