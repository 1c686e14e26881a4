package domain

// DerivedFact is the engine's output: one row per (entity, period) carrying
// resolved keys, imputed and allocated measurements, and the composite
// score, each with provenance flags.
//
// Column stability contract: once published, columns are additive-only.
// Removing or retyping a column requires explicit coordination with
// downstream consumers, who query these tables directly.
type DerivedFact struct {
	EntityID       string `json:"entity_id"`
	Period         Period `json:"period"`
	OrganizationID string `json:"organization_id,omitempty"`
	KeyResolved    bool   `json:"key_resolved"`

	// Imputed scalar metrics (baseline x adjustment factor when not observed).
	MedianIncome Value `json:"median_income"`
	IsImputed    bool  `json:"is_imputed"`

	// Zone metrics allocated down through the crosswalk.
	RentalUnits Value `json:"rental_units"` // flow: weighted sum
	VacancyRate Value `json:"vacancy_rate"` // intensity: weight-normalized average
	IsAllocated bool  `json:"is_allocated"`

	// Hierarchy-derived summary for the designated diversity category.
	DiversityIndex Value `json:"diversity_index"`

	// Fixed-weight composite of normalized component scores.
	CompositeScore Value `json:"composite_score"`
}

// CategoryFact is the per-row output of the hierarchical aggregator: the
// source CategoryNode plus the two percentage figures and the sibling rank.
type CategoryFact struct {
	CategoryNode

	// PctOfEntity is count / header CategoryTotal for this entity.
	PctOfEntity Value `json:"pct_of_entity"`
	// PctOfPopulation is count / the cross-entity sum for the identical
	// (period, category, subcategory, indent_level) cell.
	PctOfPopulation Value `json:"pct_of_population"`
	// Rank is the standard competition rank of Count among sibling rows
	// sharing (entity, period, category), descending, nulls last. 0 means
	// unranked (the row is a header, or its count is missing).
	Rank int `json:"rank"`
	// IsSubtotal marks rows that have rows nested under them; they are
	// excluded from sibling sums to avoid double counting.
	IsSubtotal bool `json:"is_subtotal"`
}
