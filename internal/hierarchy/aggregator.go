// Package hierarchy computes entity-relative and population-relative
// percentages, sibling ranks, and a diversity index over hierarchical
// category breakdowns.
//
// The computation is map-then-reduce: percentages of entity, subtotal
// detection, ranks, and entropy are scoped to one entity's rows and run in
// parallel across groups; the population-relative percentage needs a global
// cross-entity reduction and runs after every group has been mapped.
package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"metrocli/pkg/contracts/domain"
)

// Aggregator computes category facts. It holds no state across runs.
type Aggregator struct {
	logger *slog.Logger
	// diversityCategory designates the one category the Shannon entropy is
	// computed for (e.g. "ethnic_origin").
	diversityCategory string
	workers           int
}

// NewAggregator creates an aggregator. diversityCategory may be empty to
// disable the diversity index. workers caps the map-phase parallelism; zero
// means one goroutine per CPU.
func NewAggregator(logger *slog.Logger, diversityCategory string, workers int) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Aggregator{logger: logger, diversityCategory: diversityCategory, workers: workers}
}

// EntityPeriod keys per-entity summary values.
type EntityPeriod struct {
	EntityID string
	Period   domain.Period
}

// Summary is the aggregator's output: one CategoryFact per input row plus
// the diversity index per (entity, period) for the designated category.
type Summary struct {
	Facts     []domain.CategoryFact
	Diversity map[EntityPeriod]domain.Value
}

type groupKey struct {
	entityID string
	period   domain.Period
	category string
}

// Aggregate computes the derived columns for every input row. Input rows
// belonging to the same (entity, period, category) must keep their source
// order, which encodes the indent structure; groups themselves may arrive
// interleaved.
func (a *Aggregator) Aggregate(ctx context.Context, nodes []domain.CategoryNode) (*Summary, error) {
	// Group rows preserving intra-group source order.
	groups := make(map[groupKey][]domain.CategoryNode)
	for _, n := range nodes {
		k := groupKey{n.EntityID, n.Period, n.Category}
		groups[k] = append(groups[k], n)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityID != keys[j].entityID {
			return keys[i].entityID < keys[j].entityID
		}
		if keys[i].period != keys[j].period {
			return keys[i].period < keys[j].period
		}
		return keys[i].category < keys[j].category
	})

	// Map phase: per-group derivations, independent across groups.
	perGroup := make([][]domain.CategoryFact, len(keys))
	diversityPerGroup := make([]domain.Value, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			facts := mapGroup(groups[k])
			perGroup[i] = facts
			if k.category == a.diversityCategory {
				diversityPerGroup[i] = diversityIndex(facts)
			} else {
				diversityPerGroup[i] = domain.MissingValue()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate hierarchy: %w", err)
	}

	summary := &Summary{Diversity: make(map[EntityPeriod]domain.Value)}
	for i, k := range keys {
		summary.Facts = append(summary.Facts, perGroup[i]...)
		if k.category == a.diversityCategory {
			summary.Diversity[EntityPeriod{k.entityID, k.period}] = diversityPerGroup[i]
		}
	}

	// Reduce phase: population denominators need every entity's rows.
	applyPopulationShares(summary.Facts)

	a.logger.InfoContext(ctx, "aggregated category hierarchy",
		slog.Int("rows", len(summary.Facts)),
		slog.Int("groups", len(keys)),
		slog.String("diversity_category", a.diversityCategory))

	return summary, nil
}

// mapGroup derives subtotal flags, entity-relative percentages, and sibling
// ranks for one (entity, period, category) group.
func mapGroup(rows []domain.CategoryNode) []domain.CategoryFact {
	facts := make([]domain.CategoryFact, len(rows))

	// The header row's CategoryTotal is the authoritative denominator for
	// the whole group. Sibling counts are never summed for this: subtotal
	// rows nest under the header and summing them double-counts.
	denominator := domain.MissingValue()
	for _, r := range rows {
		if r.IsHeader() {
			denominator = r.CategoryTotal
			break
		}
	}
	total, haveTotal := denominator.Float()

	for i, r := range rows {
		f := domain.CategoryFact{
			CategoryNode:    r,
			PctOfEntity:     domain.MissingValue(),
			PctOfPopulation: domain.MissingValue(),
		}
		// A row is a subtotal when rows nest under it at a deeper indent.
		if !r.IsHeader() && i+1 < len(rows) && rows[i+1].IndentLevel > r.IndentLevel {
			f.IsSubtotal = true
		}
		if count, ok := r.Count.Float(); ok && haveTotal && total != 0 {
			f.PctOfEntity = domain.ObservedValue(count / total * 100)
		}
		facts[i] = f
	}

	rankSiblings(facts)
	return facts
}

// rankSiblings assigns the standard competition rank of Count among
// non-header rows sharing an indent level, descending. Ties share a rank
// and the next rank is skipped; rows with missing counts sort last and
// share the trailing rank. Header rows stay unranked.
func rankSiblings(facts []domain.CategoryFact) {
	byIndent := make(map[int][]int)
	for i, f := range facts {
		if f.IsHeader() {
			continue
		}
		byIndent[f.IndentLevel] = append(byIndent[f.IndentLevel], i)
	}

	for _, indices := range byIndent {
		ordered := make([]int, len(indices))
		copy(ordered, indices)
		sort.SliceStable(ordered, func(a, b int) bool {
			va, oka := facts[ordered[a]].Count.Float()
			vb, okb := facts[ordered[b]].Count.Float()
			if oka != okb {
				return oka // observed before missing
			}
			return va > vb
		})

		rank := 0
		var prev float64
		prevOK := false
		for pos, idx := range ordered {
			v, ok := facts[idx].Count.Float()
			switch {
			case pos == 0:
				rank = 1
			case ok != prevOK || (ok && v != prev):
				rank = pos + 1
			}
			facts[idx].Rank = rank
			prev, prevOK = v, ok
		}
	}
}

type populationKey struct {
	period      domain.Period
	category    string
	subcategory string
	indentLevel int
}

// applyPopulationShares computes count / the cross-entity sum for the
// identical (period, category, subcategory, indent_level) cell. A zero or
// empty population sum yields null, never a division error.
func applyPopulationShares(facts []domain.CategoryFact) {
	sums := make(map[populationKey]float64)
	for _, f := range facts {
		if v, ok := f.Count.Float(); ok {
			k := populationKey{f.Period, f.Category, f.Subcategory, f.IndentLevel}
			sums[k] += v
		}
	}

	for i := range facts {
		v, ok := facts[i].Count.Float()
		if !ok {
			continue
		}
		k := populationKey{facts[i].Period, facts[i].Category, facts[i].Subcategory, facts[i].IndentLevel}
		if sum := sums[k]; sum != 0 {
			facts[i].PctOfPopulation = domain.ObservedValue(v / sum * 100)
		}
	}
}

// diversityIndex computes the Shannon entropy H = -sum p_i ln(p_i) over the
// group's leaf rows, with p_i = count_i / category_total and the convention
// 0*ln(0) = 0. H is null when the denominator is null or zero, or when
// every leaf count is missing (fully suppressed).
func diversityIndex(facts []domain.CategoryFact) domain.Value {
	var total float64
	haveTotal := false
	for _, f := range facts {
		if f.IsHeader() {
			total, haveTotal = f.CategoryTotal.Float()
			break
		}
	}
	if !haveTotal || total == 0 {
		return domain.MissingValue()
	}

	h := 0.0
	observed := false
	for _, f := range facts {
		if f.IsHeader() || f.IsSubtotal {
			continue
		}
		count, ok := f.Count.Float()
		if !ok {
			continue
		}
		observed = true
		if count == 0 {
			continue // 0*ln(0) = 0
		}
		p := count / total
		h -= p * math.Log(p)
	}

	if !observed {
		return domain.MissingValue()
	}
	return domain.ObservedValue(h)
}
