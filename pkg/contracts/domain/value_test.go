package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueStates(t *testing.T) {
	tests := []struct {
		name         string
		value        Value
		wantObserved bool
		wantMissing  bool
		wantFloat    float64
		wantOK       bool
	}{
		{name: "observed", value: ObservedValue(42.5), wantObserved: true, wantFloat: 42.5, wantOK: true},
		{name: "observed zero is a real measurement", value: ObservedValue(0), wantObserved: true, wantFloat: 0, wantOK: true},
		{name: "not observed", value: MissingValue(), wantMissing: true},
		{name: "suppressed", value: SuppressedValue(), wantMissing: true},
		{name: "zero value is not observed", value: Value{}, wantMissing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantObserved, tt.value.IsObserved())
			assert.Equal(t, tt.wantMissing, tt.value.IsMissing())
			f, ok := tt.value.Float()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFloat, f)
		})
	}
}

func TestValueSuppressedIsNotObserved(t *testing.T) {
	v := SuppressedValue()
	assert.True(t, v.IsSuppressed())
	assert.False(t, v.IsObserved())

	// Suppressed must never read as zero.
	f, ok := v.Float()
	assert.False(t, ok)
	assert.Zero(t, f)
	assert.Empty(t, v.String())
}

func TestValueJSONRoundTrip(t *testing.T) {
	type row struct {
		V Value `json:"v"`
	}

	t.Run("observed encodes as number", func(t *testing.T) {
		data, err := json.Marshal(row{V: ObservedValue(72544)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":72544}`, string(data))
	})

	t.Run("missing encodes as null", func(t *testing.T) {
		data, err := json.Marshal(row{V: MissingValue()})
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":null}`, string(data))
	})

	t.Run("suppressed also encodes as null", func(t *testing.T) {
		data, err := json.Marshal(row{V: SuppressedValue()})
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":null}`, string(data))
	})

	t.Run("null decodes as not observed", func(t *testing.T) {
		var r row
		require.NoError(t, json.Unmarshal([]byte(`{"v":null}`), &r))
		assert.True(t, r.V.IsMissing())
	})

	t.Run("number decodes as observed", func(t *testing.T) {
		var r row
		require.NoError(t, json.Unmarshal([]byte(`{"v":3.25}`), &r))
		f, ok := r.V.Float()
		require.True(t, ok)
		assert.Equal(t, 3.25, f)
	})
}

func TestCategoryNodeIsHeader(t *testing.T) {
	header := CategoryNode{IndentLevel: 0}
	leaf := CategoryNode{IndentLevel: 1}
	assert.True(t, header.IsHeader())
	assert.False(t, leaf.IsHeader())
}

func TestCrosswalkGrouping(t *testing.T) {
	cw := Crosswalk{Rows: []CrosswalkRow{
		{CoarseID: "Z1", FineID: "A", Weight: 0.6},
		{CoarseID: "Z1", FineID: "B", Weight: 0.4},
		{CoarseID: "Z2", FineID: "B", Weight: 1.0},
	}}

	byCoarse := cw.ByCoarse()
	require.Len(t, byCoarse, 2)
	assert.Len(t, byCoarse["Z1"], 2)
	assert.Len(t, byCoarse["Z2"], 1)

	byFine := cw.ByFine()
	require.Len(t, byFine, 2)
	assert.Len(t, byFine["A"], 1)
	assert.Len(t, byFine["B"], 2)
}
