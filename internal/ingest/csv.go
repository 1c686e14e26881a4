// Package ingest materializes the engine's typed input tables from files
// delivered by upstream acquisition, and checks structural preconditions
// before the pipeline runs.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"metrocli/pkg/contracts/domain"
)

// suppressedMarker is the cell value sources use for measurements withheld
// on small populations. It must parse to a suppressed Value, never to zero.
const suppressedMarker = "s"

// ReadEntities reads the entity dimension: ID,Name,Kind.
func ReadEntities(path string) ([]domain.Entity, error) {
	rows, err := readTable(path, []string{"ID", "Name", "Kind"})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Entity{ID: r[0], Name: r[1], Kind: r[2]})
	}
	return out, nil
}

// ReadKeyMappings reads the sparse entity -> organization mapping:
// EntityID,Period,OrganizationID. OrganizationID may be empty.
func ReadKeyMappings(path string) ([]domain.KeyMapping, error) {
	rows, err := readTable(path, []string{"EntityID", "Period", "OrganizationID"})
	if err != nil {
		return nil, err
	}
	out := make([]domain.KeyMapping, 0, len(rows))
	for i, r := range rows {
		period, err := parsePeriod(r[1])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		out = append(out, domain.KeyMapping{EntityID: r[0], Period: period, OrganizationID: r[2]})
	}
	return out, nil
}

// ReadObservations reads entity-level scalar observations:
// EntityID,Period,Metric,Value. An empty Value cell means not observed; the
// suppression marker means withheld.
func ReadObservations(path string) ([]domain.TemporalObservation, error) {
	rows, err := readTable(path, []string{"EntityID", "Period", "Metric", "Value"})
	if err != nil {
		return nil, err
	}
	out := make([]domain.TemporalObservation, 0, len(rows))
	for i, r := range rows {
		period, err := parsePeriod(r[1])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		value, err := parseOptionalValue(r[3])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		out = append(out, domain.TemporalObservation{EntityID: r[0], Period: period, Metric: r[2], Value: value})
	}
	return out, nil
}

// ReadAdjustmentFactors reads the period-indexed factor table: Period,Factor.
func ReadAdjustmentFactors(path string) ([]domain.AdjustmentFactor, error) {
	rows, err := readTable(path, []string{"Period", "Factor"})
	if err != nil {
		return nil, err
	}
	out := make([]domain.AdjustmentFactor, 0, len(rows))
	for i, r := range rows {
		period, err := parsePeriod(r[0])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		factor, err := strconv.ParseFloat(r[1], 64)
		if err != nil {
			return nil, rowError(path, i, fmt.Errorf("parse factor: %w", err))
		}
		out = append(out, domain.AdjustmentFactor{Period: period, Factor: factor})
	}
	return out, nil
}

// ReadCrosswalk reads the coarse -> fine weighted mapping:
// CoarseID,FineID,Weight.
func ReadCrosswalk(path string) (domain.Crosswalk, error) {
	rows, err := readTable(path, []string{"CoarseID", "FineID", "Weight"})
	if err != nil {
		return domain.Crosswalk{}, err
	}
	cw := domain.Crosswalk{Rows: make([]domain.CrosswalkRow, 0, len(rows))}
	for i, r := range rows {
		weight, err := strconv.ParseFloat(r[2], 64)
		if err != nil {
			return domain.Crosswalk{}, rowError(path, i, fmt.Errorf("parse weight: %w", err))
		}
		cw.Rows = append(cw.Rows, domain.CrosswalkRow{CoarseID: r[0], FineID: r[1], Weight: weight})
	}
	return cw, nil
}

// ReadCoarseObservations reads zone-level scalar observations:
// CoarseID,Period,Metric,Value.
func ReadCoarseObservations(path string) ([]domain.CoarseObservation, error) {
	rows, err := readTable(path, []string{"CoarseID", "Period", "Metric", "Value"})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CoarseObservation, 0, len(rows))
	for i, r := range rows {
		period, err := parsePeriod(r[1])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		value, err := parseOptionalValue(r[3])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		out = append(out, domain.CoarseObservation{CoarseID: r[0], Period: period, Metric: r[2], Value: value})
	}
	return out, nil
}

// ReadCategoryNodes reads hierarchical breakdown rows:
// EntityID,Period,Category,Subcategory,IndentLevel,Count,CategoryTotal.
// Row order within a group is the indent structure and is preserved.
func ReadCategoryNodes(path string) ([]domain.CategoryNode, error) {
	rows, err := readTable(path, []string{"EntityID", "Period", "Category", "Subcategory", "IndentLevel", "Count", "CategoryTotal"})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CategoryNode, 0, len(rows))
	for i, r := range rows {
		period, err := parsePeriod(r[1])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		indent, err := strconv.Atoi(r[4])
		if err != nil {
			return nil, rowError(path, i, fmt.Errorf("parse indent level: %w", err))
		}
		count, err := parseOptionalValue(r[5])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		total, err := parseOptionalValue(r[6])
		if err != nil {
			return nil, rowError(path, i, err)
		}
		out = append(out, domain.CategoryNode{
			EntityID:      r[0],
			Period:        period,
			Category:      r[2],
			Subcategory:   r[3],
			IndentLevel:   indent,
			Count:         count,
			CategoryTotal: total,
		})
	}
	return out, nil
}

// readTable reads a CSV file, checks its header, and returns the data rows.
func readTable(path string, header []string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file, expected header %v", path, header)
	}
	if len(records[0]) != len(header) {
		return nil, fmt.Errorf("%s: header has %d columns, expected %d", path, len(records[0]), len(header))
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(records[0][i]), col) {
			return nil, fmt.Errorf("%s: header column %d is %q, expected %q", path, i, records[0][i], col)
		}
	}
	return records[1:], nil
}

// parseOptionalValue maps a cell to the three-state Value: empty is not
// observed, the suppression marker is suppressed, anything else must parse
// as a float (zero included).
func parseOptionalValue(cell string) (domain.Value, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return domain.MissingValue(), nil
	}
	if strings.EqualFold(cell, suppressedMarker) {
		return domain.SuppressedValue(), nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return domain.Value{}, fmt.Errorf("parse value %q: %w", cell, err)
	}
	return domain.ObservedValue(f), nil
}

func parsePeriod(cell string) (domain.Period, error) {
	p, err := strconv.Atoi(strings.TrimSpace(cell))
	if err != nil {
		return 0, fmt.Errorf("parse period %q: %w", cell, err)
	}
	return domain.Period(p), nil
}

func rowError(path string, row int, err error) error {
	// +2: one for the header row, one for 1-based numbering.
	return fmt.Errorf("%s row %d: %w", path, row+2, err)
}
