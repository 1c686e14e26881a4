// Package composite combines normalized component scores into fixed-weight
// composite indices per entity and period.
package composite

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"metrocli/pkg/contracts/domain"
)

// weightSumTolerance bounds how far the component weights may drift from
// summing to 1.0 before the definition is rejected.
const weightSumTolerance = 1e-6

// DefaultNeutralScore substitutes for a missing component on the 0-100
// scale. Substituting a neutral default instead of propagating null or
// renormalizing the remaining weights keeps every entity's composite
// comparable and makes the policy auditable in one place.
const DefaultNeutralScore = 50.0

// Component defines one input to the composite: its name, its fixed weight,
// the fixed rescale factor that brings it onto the common 0-100 basis, and
// the neutral default used when the score is missing.
type Component struct {
	Name    string
	Weight  float64
	Rescale float64 // multiplier onto the 0-100 basis; 1.0 for already-normalized scores
	Neutral float64 // substituted (on the common basis) when the score is missing
}

// Builder computes composites from a fixed component definition.
type Builder struct {
	logger     *slog.Logger
	components []Component
}

// NewBuilder validates the component definition: weights must sum to 1.0
// within tolerance and rescale factors must be positive.
func NewBuilder(logger *slog.Logger, components []Component) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("composite definition has no components")
	}

	sum := 0.0
	for _, c := range components {
		if c.Weight < 0 {
			return nil, fmt.Errorf("component %s: weight must be non-negative, got %v", c.Name, c.Weight)
		}
		if c.Rescale <= 0 {
			return nil, fmt.Errorf("component %s: rescale factor must be positive, got %v", c.Name, c.Rescale)
		}
		sum += c.Weight
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return nil, fmt.Errorf("component weights must sum to 1.0, got %v", sum)
	}

	return &Builder{logger: logger, components: components}, nil
}

// Row carries one entity/period's named component scores into the builder.
// Scores are on their source scales; the builder applies each component's
// fixed rescale factor before weighting.
type Row struct {
	EntityID string
	Period   domain.Period
	Scores   map[string]domain.Value
}

// Result is one composite score.
type Result struct {
	EntityID string
	Period   domain.Period
	Score    domain.Value
	// MissingComponents lists components substituted with their neutral
	// default, for downstream transparency.
	MissingComponents []string
}

// Build computes composite = sum(weight_i x component_i) per row. Rescaled
// components clamp to [0, 100]. A missing component is substituted with its
// neutral default rather than nulling the composite or renormalizing
// remaining weights.
func (b *Builder) Build(ctx context.Context, rows []Row) []Result {
	results := make([]Result, 0, len(rows))
	substituted := 0

	for _, row := range rows {
		r := Result{EntityID: row.EntityID, Period: row.Period}
		score := 0.0
		for _, c := range b.components {
			v, ok := row.Scores[c.Name].Float()
			if ok {
				// A rescaled component stays on the 0-100 basis: a source
				// value past the rescale ceiling clamps instead of letting
				// one component dominate the composite.
				scaled := v * c.Rescale
				if scaled > 100 {
					scaled = 100
				} else if scaled < 0 {
					scaled = 0
				}
				score += c.Weight * scaled
			} else {
				score += c.Weight * c.Neutral
				r.MissingComponents = append(r.MissingComponents, c.Name)
			}
		}
		if len(r.MissingComponents) > 0 {
			substituted++
		}
		r.Score = domain.ObservedValue(score)
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].EntityID != results[j].EntityID {
			return results[i].EntityID < results[j].EntityID
		}
		return results[i].Period < results[j].Period
	})

	b.logger.InfoContext(ctx, "built composite scores",
		slog.Int("rows", len(results)),
		slog.Int("components", len(b.components)),
		slog.Int("rows_with_substitutions", substituted))

	return results
}
