package ingest

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	apperrors "metrocli/internal/errors"
	"metrocli/pkg/contracts/domain"
)

// Validator checks input tables against their structural preconditions.
// Everything here is batch-fatal by design: these are the malformed-input
// conditions that must surface once, up front, instead of degrading rows
// silently mid-run.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateBundle runs field-level validation over every input table, then
// the cross-row structural checks the tag syntax cannot express.
func (v *Validator) ValidateBundle(b *Bundle) error {
	for _, e := range b.Entities {
		if err := v.validate.Struct(e); err != nil {
			return fmt.Errorf("entities: %w", err)
		}
	}
	for _, km := range b.KeyMappings {
		if err := v.validate.Struct(km); err != nil {
			return fmt.Errorf("key mappings: %w", err)
		}
	}
	for _, obs := range b.Observations {
		if err := v.validate.Struct(obs); err != nil {
			return fmt.Errorf("observations: %w", err)
		}
	}
	for _, f := range b.Factors {
		if err := v.validate.Struct(f); err != nil {
			return fmt.Errorf("adjustment factors: %w", err)
		}
	}
	for _, row := range b.Crosswalk.Rows {
		if err := v.validate.Struct(row); err != nil {
			return fmt.Errorf("crosswalk: %w", err)
		}
	}
	for _, obs := range b.CoarseObservations {
		if err := v.validate.Struct(obs); err != nil {
			return fmt.Errorf("zone observations: %w", err)
		}
	}
	for _, n := range b.CategoryNodes {
		if err := v.validate.Struct(n); err != nil {
			return fmt.Errorf("category nodes: %w", err)
		}
	}

	return ValidateCategoryNodes(b.CategoryNodes)
}

// ValidateCategoryNodes checks that every (entity, period, category) group
// has a header row and that each header's own count equals its category
// total. Percentage denominators come from headers, so a malformed header
// corrupts a whole group.
func ValidateCategoryNodes(nodes []domain.CategoryNode) error {
	type key struct {
		entityID string
		period   domain.Period
		category string
	}

	hasHeader := make(map[key]bool)
	seen := make(map[key]bool)
	for _, n := range nodes {
		k := key{n.EntityID, n.Period, n.Category}
		seen[k] = true
		if !n.IsHeader() {
			continue
		}
		hasHeader[k] = true

		count, countOK := n.Count.Float()
		total, totalOK := n.CategoryTotal.Float()
		if countOK && totalOK && count != total {
			return apperrors.Structural("category_nodes",
				fmt.Sprintf("%s/%d/%s", n.EntityID, n.Period, n.Category),
				apperrors.ErrHeaderInconsistent)
		}
	}

	for k := range seen {
		if !hasHeader[k] {
			return apperrors.Structural("category_nodes",
				fmt.Sprintf("%s/%d/%s", k.entityID, k.period, k.category),
				apperrors.ErrMissingHeader)
		}
	}
	return nil
}
