package domain

// TemporalObservation is one scalar measurement of a metric for an entity in
// a period. Value distinguishes "not observed" from an observed zero and
// from suppression; see Value.
type TemporalObservation struct {
	EntityID string `json:"entity_id" validate:"required"`
	Period   Period `json:"period"`
	Metric   string `json:"metric" validate:"required"`
	Value    Value  `json:"value"`
}

// AdjustmentFactor is a period-indexed multiplier relative to one designated
// baseline period. factor(baseline) = 1.0 by construction.
type AdjustmentFactor struct {
	Period Period  `json:"period"`
	Factor float64 `json:"factor" validate:"gt=0"`
}

// CrosswalkRow links one coarse unit to one fine unit with an allocation
// weight. A fine unit may appear under several coarse units (many-to-many).
type CrosswalkRow struct {
	CoarseID string  `json:"coarse_id" validate:"required"`
	FineID   string  `json:"fine_id" validate:"required"`
	Weight   float64 `json:"weight" validate:"gte=0,lte=1"`
}

// Crosswalk is the full weighted mapping for one run. The structural
// invariant, each coarse unit's weights summing to 1 within tolerance, is
// checked once, up front, when the allocator is built.
type Crosswalk struct {
	Rows []CrosswalkRow `json:"rows" validate:"dive"`
}

// ByCoarse groups the crosswalk rows by coarse unit.
func (c Crosswalk) ByCoarse() map[string][]CrosswalkRow {
	out := make(map[string][]CrosswalkRow)
	for _, r := range c.Rows {
		out[r.CoarseID] = append(out[r.CoarseID], r)
	}
	return out
}

// ByFine groups the crosswalk rows by fine unit (the contributing set used
// by allocation).
func (c Crosswalk) ByFine() map[string][]CrosswalkRow {
	out := make(map[string][]CrosswalkRow)
	for _, r := range c.Rows {
		out[r.FineID] = append(out[r.FineID], r)
	}
	return out
}

// CoarseObservation is one coarse-unit scalar per period, the input side of
// allocation.
type CoarseObservation struct {
	CoarseID string `json:"coarse_id" validate:"required"`
	Period   Period `json:"period"`
	Metric   string `json:"metric" validate:"required"`
	Value    Value  `json:"value"`
}
