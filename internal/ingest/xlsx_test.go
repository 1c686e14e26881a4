package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"metrocli/pkg/contracts/domain"
)

func writeCensusWorkbook(t *testing.T, path string, sheets map[string][][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for sheet, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", sheet))
			first = false
		} else {
			_, err := f.NewSheet(sheet)
			require.NoError(t, err)
		}
		header := []interface{}{"Category", "Subcategory", "IndentLevel", "Count", "CategoryTotal"}
		require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(sheet, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestReadCensusWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "census_2021.xlsx")
	writeCensusWorkbook(t, path, map[string][][]interface{}{
		"N001": {
			{"ethnic_origin", "Total", 0, 500, 500},
			{"ethnic_origin", "Group A", 1, 200, 500},
			{"ethnic_origin", "Group B", 1, "s", 500},
			{"", "", "", "", ""}, // spacer
			{"dwelling_type", "Total", 0, 300, 300},
		},
	})

	nodes, err := ReadCensusWorkbook(path, 2021)
	require.NoError(t, err)
	require.Len(t, nodes, 4, "spacer rows are dropped")

	assert.Equal(t, "N001", nodes[0].EntityID)
	assert.Equal(t, domain.Period(2021), nodes[0].Period)
	assert.True(t, nodes[0].IsHeader())

	count, ok := nodes[1].Count.Float()
	require.True(t, ok)
	assert.Equal(t, 200.0, count)

	assert.True(t, nodes[2].Count.IsSuppressed())
	assert.Equal(t, "dwelling_type", nodes[3].Category)
}

func TestReadCensusWorkbookBadIndent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "census_2021.xlsx")
	writeCensusWorkbook(t, path, map[string][][]interface{}{
		"N001": {
			{"ethnic_origin", "Total", "x", 500, 500},
		},
	})

	_, err := ReadCensusWorkbook(path, 2021)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indent level")
}

func TestWorkbookPeriod(t *testing.T) {
	p, err := workbookPeriod("/data/in/census_2021.xlsx")
	require.NoError(t, err)
	assert.Equal(t, domain.Period(2021), p)

	_, err = workbookPeriod("/data/in/census_latest.xlsx")
	require.Error(t, err)
}
