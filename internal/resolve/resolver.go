// Package resolve fills gaps in the entity -> organization key mapping
// across periods. Source mappings are sparse and keyed inconsistently over
// time; downstream joins need a total mapping, or an explicit null where an
// entity was never mapped at all.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"metrocli/pkg/contracts/domain"
)

// Resolver computes the total mapping. It holds no state across runs.
type Resolver struct {
	logger  *slog.Logger
	workers int
}

// NewResolver creates a resolver. workers caps the fill parallelism; zero
// means one goroutine per CPU.
func NewResolver(logger *slog.Logger, workers int) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Resolver{logger: logger, workers: workers}
}

// ResolvedKeys is the total mapping produced by Resolve. Lookups for
// entities that were never mapped in any period return ok=false; that is a
// terminal, reportable state, not an error.
type ResolvedKeys struct {
	periods  []domain.Period
	byEntity map[string][]string // parallel to periods, "" = unresolved
}

// Lookup returns the organization for an entity in a period.
func (r *ResolvedKeys) Lookup(entityID string, period domain.Period) (string, bool) {
	timeline, exists := r.byEntity[entityID]
	if !exists {
		return "", false
	}
	for i, p := range r.periods {
		if p == period {
			if timeline[i] == "" {
				return "", false
			}
			return timeline[i], true
		}
	}
	return "", false
}

// Rows flattens the mapping back into sorted KeyMapping rows, including
// unresolved ones with an empty organization ID.
func (r *ResolvedKeys) Rows() []domain.KeyMapping {
	entityIDs := make([]string, 0, len(r.byEntity))
	for id := range r.byEntity {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	rows := make([]domain.KeyMapping, 0, len(entityIDs)*len(r.periods))
	for _, id := range entityIDs {
		for i, p := range r.periods {
			rows = append(rows, domain.KeyMapping{
				EntityID:       id,
				Period:         p,
				OrganizationID: r.byEntity[id][i],
			})
		}
	}
	return rows
}

// UnresolvedEntities lists entities with no known mapping in any period.
func (r *ResolvedKeys) UnresolvedEntities() []string {
	var out []string
	for id, timeline := range r.byEntity {
		resolved := false
		for _, org := range timeline {
			if org != "" {
				resolved = true
				break
			}
		}
		if !resolved {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve builds the cross product of entities x periods, overlays the
// sparse known mapping, then forward-fills and backward-fills each entity's
// timeline. The forward pass runs first, so a gap with known values on both
// sides takes the earlier value: when both neighbours are equidistant the
// forward-fill direction wins. That is the documented tie policy, not an
// accident of iteration order.
func (r *Resolver) Resolve(ctx context.Context, entityIDs []string, periods []domain.Period, known []domain.KeyMapping) (*ResolvedKeys, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("resolve keys: no known periods")
	}

	sorted := make([]domain.Period, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	periodIndex := make(map[domain.Period]int, len(sorted))
	for i, p := range sorted {
		periodIndex[p] = i
	}

	// Overlay the sparse known mapping onto per-entity timelines.
	knownByEntity := make(map[string]map[domain.Period]string)
	for _, km := range known {
		if km.OrganizationID == "" {
			continue
		}
		if _, ok := periodIndex[km.Period]; !ok {
			return nil, fmt.Errorf("resolve keys: mapping for entity %s references unknown period %d", km.EntityID, km.Period)
		}
		if knownByEntity[km.EntityID] == nil {
			knownByEntity[km.EntityID] = make(map[domain.Period]string)
		}
		knownByEntity[km.EntityID][km.Period] = km.OrganizationID
	}

	ids := make([]string, len(entityIDs))
	copy(ids, entityIDs)
	sort.Strings(ids)

	// Each entity's timeline is independent; fill them in parallel.
	timelines := make([][]string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			timelines[i] = fillTimeline(sorted, knownByEntity[id])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve keys: %w", err)
	}

	byEntity := make(map[string][]string, len(ids))
	for i, id := range ids {
		byEntity[id] = timelines[i]
	}

	result := &ResolvedKeys{periods: sorted, byEntity: byEntity}

	unresolved := result.UnresolvedEntities()
	r.logger.InfoContext(ctx, "resolved entity key mappings",
		slog.Int("entities", len(ids)),
		slog.Int("periods", len(sorted)),
		slog.Int("unresolved_entities", len(unresolved)))
	if len(unresolved) > 0 {
		r.logger.WarnContext(ctx, "entities with no key in any period remain unresolved",
			slog.Int("count", len(unresolved)))
	}

	return result, nil
}

// fillTimeline overlays known values for one entity, then fills forward and
// backward. Backward fill can only apply at the start of the timeline,
// before the earliest known value.
func fillTimeline(periods []domain.Period, known map[domain.Period]string) []string {
	timeline := make([]string, len(periods))
	for i, p := range periods {
		timeline[i] = known[p]
	}

	// Forward fill: carry the most recent non-null value ahead.
	last := ""
	for i := range timeline {
		if timeline[i] != "" {
			last = timeline[i]
		} else if last != "" {
			timeline[i] = last
		}
	}

	// Backward fill the leading gap from the earliest known value.
	next := ""
	for i := len(timeline) - 1; i >= 0; i-- {
		if timeline[i] != "" {
			next = timeline[i]
		} else if next != "" {
			timeline[i] = next
		}
	}

	return timeline
}
