// Package exporter materializes derived tables as CSV snapshots.
//
// Column sets are a stability contract: downstream consumers read these
// files directly, so columns are additive-only. Removing or retyping one
// requires explicit coordination.
package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"metrocli/pkg/contracts/domain"
)

// WriteDerivedFacts writes the DerivedFact table. Null values render as
// empty cells, never as zeros.
func WriteDerivedFacts(ctx context.Context, logger *slog.Logger, path string, facts []domain.DerivedFact) error {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := createFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{
		"EntityID", "Period", "OrganizationID", "KeyResolved",
		"MedianIncome", "IsImputed",
		"RentalUnits", "VacancyRate", "IsAllocated",
		"DiversityIndex", "CompositeScore",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write derived facts header: %w", err)
	}

	for _, f := range facts {
		row := []string{
			f.EntityID,
			f.Period.String(),
			f.OrganizationID,
			strconv.FormatBool(f.KeyResolved),
			formatValue(f.MedianIncome, 2),
			strconv.FormatBool(f.IsImputed),
			formatValue(f.RentalUnits, 2),
			formatValue(f.VacancyRate, 4),
			strconv.FormatBool(f.IsAllocated),
			formatValue(f.DiversityIndex, 4),
			formatValue(f.CompositeScore, 2),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write derived facts row: %w", err)
		}
	}

	logger.InfoContext(ctx, "wrote derived facts",
		slog.String("path", path),
		slog.Int("rows", len(facts)))
	return nil
}

// WriteCategoryFacts writes the per-row hierarchy output table.
func WriteCategoryFacts(ctx context.Context, logger *slog.Logger, path string, facts []domain.CategoryFact) error {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := createFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{
		"EntityID", "Period", "Category", "Subcategory", "IndentLevel",
		"Count", "CategoryTotal", "PctOfEntity", "PctOfPopulation",
		"Rank", "IsSubtotal",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write category facts header: %w", err)
	}

	for _, f := range facts {
		rank := ""
		if f.Rank > 0 {
			rank = strconv.Itoa(f.Rank)
		}
		row := []string{
			f.EntityID,
			f.Period.String(),
			f.Category,
			f.Subcategory,
			strconv.Itoa(f.IndentLevel),
			formatValue(f.Count, 0),
			formatValue(f.CategoryTotal, 0),
			formatValue(f.PctOfEntity, 2),
			formatValue(f.PctOfPopulation, 2),
			rank,
			strconv.FormatBool(f.IsSubtotal),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write category facts row: %w", err)
		}
	}

	logger.InfoContext(ctx, "wrote category facts",
		slog.String("path", path),
		slog.Int("rows", len(facts)))
	return nil
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return file, nil
}

// formatValue renders an optional value for a CSV cell. Missing and
// suppressed values become empty cells; the provenance columns carry the
// distinction.
func formatValue(v domain.Value, decimals int) string {
	f, ok := v.Float()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'f', decimals, 64)
}
