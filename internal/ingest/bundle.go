package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"metrocli/pkg/contracts/domain"
)

// Input file names under the run's input directory.
const (
	fileEntities          = "entities.csv"
	fileKeyMappings       = "key_mappings.csv"
	fileObservations      = "observations.csv"
	fileAdjustmentFactors = "adjustment_factors.csv"
	fileCrosswalk         = "crosswalk.csv"
	fileZoneObservations  = "zone_observations.csv"
	fileCategoryNodes     = "category_nodes.csv"
	censusWorkbookPrefix  = "census_"
)

// Bundle is one run's full set of input tables, immutable once loaded.
type Bundle struct {
	Entities           []domain.Entity
	KeyMappings        []domain.KeyMapping
	Observations       []domain.TemporalObservation
	Factors            []domain.AdjustmentFactor
	Crosswalk          domain.Crosswalk
	CoarseObservations []domain.CoarseObservation
	CategoryNodes      []domain.CategoryNode
}

// EntityIDs returns the sorted IDs of every entity in scope.
func (b *Bundle) EntityIDs() []string {
	ids := make([]string, 0, len(b.Entities))
	for _, e := range b.Entities {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}

// Periods returns the sorted union of periods seen across the observation
// tables. The adjustment factor table deliberately does not contribute:
// factors may cover periods no source ever observed.
func (b *Bundle) Periods() []domain.Period {
	set := make(map[domain.Period]bool)
	for _, km := range b.KeyMappings {
		set[km.Period] = true
	}
	for _, o := range b.Observations {
		set[o.Period] = true
	}
	for _, o := range b.CoarseObservations {
		set[o.Period] = true
	}
	for _, n := range b.CategoryNodes {
		set[n.Period] = true
	}
	periods := make([]domain.Period, 0, len(set))
	for p := range set {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
	return periods
}

// LoadDir reads every input table from dir. CSV tables are required except
// zone observations and category nodes, which default to empty; census
// workbooks (census_<period>.xlsx) are optional and append to the category
// node table.
func LoadDir(ctx context.Context, logger *slog.Logger, dir string) (*Bundle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bundle{}
	var err error

	if b.Entities, err = ReadEntities(filepath.Join(dir, fileEntities)); err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	if b.KeyMappings, err = ReadKeyMappings(filepath.Join(dir, fileKeyMappings)); err != nil {
		return nil, fmt.Errorf("load key mappings: %w", err)
	}
	if b.Observations, err = ReadObservations(filepath.Join(dir, fileObservations)); err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	if b.Factors, err = ReadAdjustmentFactors(filepath.Join(dir, fileAdjustmentFactors)); err != nil {
		return nil, fmt.Errorf("load adjustment factors: %w", err)
	}
	if b.Crosswalk, err = ReadCrosswalk(filepath.Join(dir, fileCrosswalk)); err != nil {
		return nil, fmt.Errorf("load crosswalk: %w", err)
	}

	if b.CoarseObservations, err = readOptional(filepath.Join(dir, fileZoneObservations), ReadCoarseObservations); err != nil {
		return nil, fmt.Errorf("load zone observations: %w", err)
	}
	if b.CategoryNodes, err = readOptional(filepath.Join(dir, fileCategoryNodes), ReadCategoryNodes); err != nil {
		return nil, fmt.Errorf("load category nodes: %w", err)
	}

	workbooks, err := filepath.Glob(filepath.Join(dir, censusWorkbookPrefix+"*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("scan census workbooks: %w", err)
	}
	sort.Strings(workbooks)
	for _, wb := range workbooks {
		period, err := workbookPeriod(wb)
		if err != nil {
			return nil, err
		}
		nodes, err := ReadCensusWorkbook(wb, period)
		if err != nil {
			return nil, fmt.Errorf("load census workbook: %w", err)
		}
		b.CategoryNodes = append(b.CategoryNodes, nodes...)
	}

	logger.InfoContext(ctx, "loaded input bundle",
		slog.String("dir", dir),
		slog.Int("entities", len(b.Entities)),
		slog.Int("key_mappings", len(b.KeyMappings)),
		slog.Int("observations", len(b.Observations)),
		slog.Int("crosswalk_rows", len(b.Crosswalk.Rows)),
		slog.Int("zone_observations", len(b.CoarseObservations)),
		slog.Int("category_nodes", len(b.CategoryNodes)),
		slog.Int("census_workbooks", len(workbooks)))

	return b, nil
}

func readOptional[T any](path string, read func(string) ([]T, error)) ([]T, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return read(path)
}

// workbookPeriod extracts the period from census_<period>.xlsx.
func workbookPeriod(path string) (domain.Period, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".xlsx")
	raw := strings.TrimPrefix(name, censusWorkbookPrefix)
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("census workbook %s: period suffix %q: %w", path, raw, err)
	}
	return domain.Period(p), nil
}
