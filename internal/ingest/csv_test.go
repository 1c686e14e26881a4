package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrocli/pkg/contracts/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadObservationsThreeStateValues(t *testing.T) {
	path := writeFile(t, "observations.csv",
		"EntityID,Period,Metric,Value\n"+
			"N001,2016,median_income,80000\n"+
			"N001,2011,median_income,\n"+
			"N002,2016,median_income,s\n"+
			"N003,2016,median_income,0\n")

	obs, err := ReadObservations(path)
	require.NoError(t, err)
	require.Len(t, obs, 4)

	v, ok := obs[0].Value.Float()
	require.True(t, ok)
	assert.Equal(t, 80000.0, v)

	assert.True(t, obs[1].Value.IsMissing())
	assert.False(t, obs[1].Value.IsSuppressed())

	assert.True(t, obs[2].Value.IsSuppressed())

	// An explicit zero is an observation, not a gap.
	v, ok = obs[3].Value.Float()
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestReadObservationsBadValue(t *testing.T) {
	path := writeFile(t, "observations.csv",
		"EntityID,Period,Metric,Value\nN001,2016,median_income,abc\n")
	_, err := ReadObservations(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestReadTableHeaderMismatch(t *testing.T) {
	path := writeFile(t, "entities.csv", "ID,Name\nN001,Riverdale\n")
	_, err := ReadEntities(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestReadTableEmptyFile(t *testing.T) {
	path := writeFile(t, "entities.csv", "")
	_, err := ReadEntities(path)
	require.Error(t, err)
}

func TestReadKeyMappingsAllowsEmptyOrganization(t *testing.T) {
	path := writeFile(t, "key_mappings.csv",
		"EntityID,Period,OrganizationID\nN001,2016,ORG-1\nN002,2016,\n")

	mappings, err := ReadKeyMappings(path)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "ORG-1", mappings[0].OrganizationID)
	assert.Empty(t, mappings[1].OrganizationID)
	assert.Equal(t, domain.Period(2016), mappings[0].Period)
}

func TestReadCrosswalk(t *testing.T) {
	path := writeFile(t, "crosswalk.csv",
		"CoarseID,FineID,Weight\nZ1,N001,0.6\nZ1,N002,0.4\n")

	cw, err := ReadCrosswalk(path)
	require.NoError(t, err)
	require.Len(t, cw.Rows, 2)
	assert.Equal(t, 0.6, cw.Rows[0].Weight)
}

func TestReadCategoryNodesPreservesOrder(t *testing.T) {
	path := writeFile(t, "category_nodes.csv",
		"EntityID,Period,Category,Subcategory,IndentLevel,Count,CategoryTotal\n"+
			"N001,2021,ethnic_origin,Total,0,500,500\n"+
			"N001,2021,ethnic_origin,Group A,1,200,500\n"+
			"N001,2021,ethnic_origin,Group B,1,s,500\n")

	nodes, err := ReadCategoryNodes(path)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.True(t, nodes[0].IsHeader())
	assert.Equal(t, "Group A", nodes[1].Subcategory)
	assert.True(t, nodes[2].Count.IsSuppressed())
}

func TestLoadDirOptionalTables(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"entities.csv":           "ID,Name,Kind\nN001,Riverdale,neighbourhood\n",
		"key_mappings.csv":       "EntityID,Period,OrganizationID\nN001,2016,ORG-1\n",
		"observations.csv":       "EntityID,Period,Metric,Value\nN001,2016,median_income,80000\n",
		"adjustment_factors.csv": "Period,Factor\n2011,0.9068\n2016,1.0\n",
		"crosswalk.csv":          "CoarseID,FineID,Weight\nZ1,N001,1.0\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	b, err := LoadDir(context.Background(), nil, dir)
	require.NoError(t, err)

	assert.Len(t, b.Entities, 1)
	assert.Empty(t, b.CoarseObservations, "zone observations are optional")
	assert.Empty(t, b.CategoryNodes, "category nodes are optional")
	assert.Equal(t, []string{"N001"}, b.EntityIDs())
	assert.Equal(t, []domain.Period{2016}, b.Periods(), "factor periods do not widen the run")
}

func TestLoadDirMissingRequiredTable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entities.csv"),
		[]byte("ID,Name,Kind\nN001,Riverdale,neighbourhood\n"), 0644))

	_, err := LoadDir(context.Background(), nil, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key mappings")
}
