package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"metrocli/pkg/contracts/domain"
)

// ReadCensusWorkbook reads hierarchical breakdown rows from a census
// workbook. Each sheet holds one entity's characteristic table, the sheet
// name being the entity ID. Row 1 is the header
// (Category,Subcategory,IndentLevel,Count,CategoryTotal); data rows keep
// source order, which encodes the indent structure.
func ReadCensusWorkbook(path string, period domain.Period) ([]domain.CategoryNode, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	var nodes []domain.CategoryNode
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s of %s: %w", sheet, path, err)
		}
		if len(rows) <= 1 {
			continue
		}
		for i, row := range rows[1:] {
			node, err := parseWorkbookRow(sheet, period, row)
			if err != nil {
				return nil, fmt.Errorf("%s sheet %s row %d: %w", path, sheet, i+2, err)
			}
			if node.Category == "" {
				continue // blank spacer row
			}
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func parseWorkbookRow(entityID string, period domain.Period, row []string) (domain.CategoryNode, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	node := domain.CategoryNode{
		EntityID:    entityID,
		Period:      period,
		Category:    cell(0),
		Subcategory: cell(1),
	}
	if node.Category == "" {
		return node, nil
	}

	indent, err := strconv.Atoi(cell(2))
	if err != nil {
		return node, fmt.Errorf("parse indent level: %w", err)
	}
	node.IndentLevel = indent

	node.Count, err = parseOptionalValue(cell(3))
	if err != nil {
		return node, err
	}
	node.CategoryTotal, err = parseOptionalValue(cell(4))
	if err != nil {
		return node, err
	}
	return node, nil
}
