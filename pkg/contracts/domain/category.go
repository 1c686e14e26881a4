package domain

// CategoryNode is one row of a hierarchical demographic breakdown for an
// entity and period. IndentLevel 0 marks the header row whose CategoryTotal
// is the authoritative denominator for every non-header row sharing
// (entity, period, category). The header row's own Count equals its
// CategoryTotal.
type CategoryNode struct {
	EntityID      string `json:"entity_id" validate:"required"`
	Period        Period `json:"period"`
	Category      string `json:"category" validate:"required"`
	Subcategory   string `json:"subcategory"`
	IndentLevel   int    `json:"indent_level" validate:"gte=0"`
	Count         Value  `json:"count"`
	CategoryTotal Value  `json:"category_total"`
}

// IsHeader reports whether this row carries the category denominator.
// Subtotal rows are nested between the header and the leaves; summing them
// alongside leaves double-counts, which is why percentage denominators
// always come from the header row, never from sibling sums.
func (n CategoryNode) IsHeader() bool {
	return n.IndentLevel == 0
}
