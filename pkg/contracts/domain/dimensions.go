package domain

import "strconv"

// Period identifies one observation period (a census or survey year).
// Periods order naturally as integers.
type Period int

// String returns the string representation of the period
func (p Period) String() string {
	return strconv.Itoa(int(p))
}

// Entity is the analysis unit: a neighbourhood, a club, any fine-grained
// unit the derived tables are keyed by. Identity is the stable ID assigned
// by upstream ingestion; entities are immutable once created.
type Entity struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
	Kind string `json:"kind"` // "neighbourhood", "club", ...
}

// Organization is the coarse key target entities map to per period: a
// survey zone, a league, a ward.
type Organization struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// KeyMapping is one sparse row of the entity -> organization mapping.
// OrganizationID empty means the mapping is unknown for that period.
type KeyMapping struct {
	EntityID       string `json:"entity_id" validate:"required"`
	Period         Period `json:"period"`
	OrganizationID string `json:"organization_id"`
}
