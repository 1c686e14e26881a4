package allocate

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "metrocli/internal/errors"
	"metrocli/pkg/contracts/domain"
)

const epsilon = 0.001

func splitCrosswalk() domain.Crosswalk {
	return domain.Crosswalk{Rows: []domain.CrosswalkRow{
		{CoarseID: "Z1", FineID: "A", Weight: 0.6},
		{CoarseID: "Z1", FineID: "B", Weight: 0.4},
	}}
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		rows    []domain.CrosswalkRow
		wantErr error
	}{
		{
			name: "sums to one",
			rows: splitCrosswalk().Rows,
		},
		{
			name: "within tolerance",
			rows: []domain.CrosswalkRow{
				{CoarseID: "Z1", FineID: "A", Weight: 0.6004},
				{CoarseID: "Z1", FineID: "B", Weight: 0.4},
			},
		},
		{
			name: "out of tolerance",
			rows: []domain.CrosswalkRow{
				{CoarseID: "Z1", FineID: "A", Weight: 0.6},
				{CoarseID: "Z1", FineID: "B", Weight: 0.3},
			},
			wantErr: apperrors.ErrWeightSumOutOfTolerance,
		},
		{
			name: "zero sum",
			rows: []domain.CrosswalkRow{
				{CoarseID: "Z1", FineID: "A", Weight: 0},
				{CoarseID: "Z1", FineID: "B", Weight: 0},
			},
			wantErr: apperrors.ErrZeroWeightSum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(domain.Crosswalk{Rows: tt.rows}, epsilon)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, apperrors.IsStructural(err))
		})
	}
}

func TestAllocateFlowSplitsWeightedSum(t *testing.T) {
	a, err := NewAllocator(nil, splitCrosswalk(), epsilon, 0)
	require.NoError(t, err)

	observations := []domain.CoarseObservation{
		{CoarseID: "Z1", Period: 2021, Metric: "rental_units", Value: domain.ObservedValue(100)},
	}

	results, err := a.Allocate(context.Background(), observations,
		Metric{Name: "rental_units", Mode: Flow}, []string{"A", "B"}, []domain.Period{2021})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byFine := map[string]Result{}
	for _, r := range results {
		byFine[r.FineID] = r
	}

	v, ok := byFine["A"].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 60.0, v, 1e-9)
	assert.True(t, byFine["A"].IsAllocated)

	v, ok = byFine["B"].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 40.0, v, 1e-9)
}

func TestAllocateIntensityNormalizesByWeight(t *testing.T) {
	cw := domain.Crosswalk{Rows: []domain.CrosswalkRow{
		{CoarseID: "Z1", FineID: "A", Weight: 0.5},
		{CoarseID: "Z1", FineID: "B", Weight: 0.5},
		{CoarseID: "Z2", FineID: "A", Weight: 0.25},
		{CoarseID: "Z2", FineID: "C", Weight: 0.75},
	}}
	a, err := NewAllocator(nil, cw, epsilon, 0)
	require.NoError(t, err)

	observations := []domain.CoarseObservation{
		{CoarseID: "Z1", Period: 2021, Metric: "vacancy_rate", Value: domain.ObservedValue(0.05)},
		{CoarseID: "Z2", Period: 2021, Metric: "vacancy_rate", Value: domain.ObservedValue(0.10)},
	}

	results, err := a.Allocate(context.Background(), observations,
		Metric{Name: "vacancy_rate", Mode: Intensity}, []string{"A"}, []domain.Period{2021})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// A rate is an average, not a sum: (0.5*0.05 + 0.25*0.10) / 0.75.
	v, ok := results[0].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, (0.5*0.05+0.25*0.10)/0.75, v, 1e-12)
}

func TestAllocateUnmappedFineUnitIsNull(t *testing.T) {
	a, err := NewAllocator(nil, splitCrosswalk(), epsilon, 0)
	require.NoError(t, err)

	observations := []domain.CoarseObservation{
		{CoarseID: "Z1", Period: 2021, Metric: "rental_units", Value: domain.ObservedValue(100)},
	}

	results, err := a.Allocate(context.Background(), observations,
		Metric{Name: "rental_units", Mode: Flow}, []string{"A", "X"}, []domain.Period{2021})
	require.NoError(t, err)

	for _, r := range results {
		if r.FineID == "X" {
			assert.True(t, r.Value.IsMissing(), "fine unit with no crosswalk rows must be null, not zero")
			assert.False(t, r.IsAllocated)
		}
	}
}

func TestAllocateSkipsUnobservedContributions(t *testing.T) {
	cw := domain.Crosswalk{Rows: []domain.CrosswalkRow{
		{CoarseID: "Z1", FineID: "A", Weight: 1.0},
		{CoarseID: "Z2", FineID: "A", Weight: 1.0},
	}}
	a, err := NewAllocator(nil, cw, epsilon, 0)
	require.NoError(t, err)

	observations := []domain.CoarseObservation{
		{CoarseID: "Z1", Period: 2021, Metric: "rental_units", Value: domain.ObservedValue(80)},
		{CoarseID: "Z2", Period: 2021, Metric: "rental_units", Value: domain.SuppressedValue()},
	}

	results, err := a.Allocate(context.Background(), observations,
		Metric{Name: "rental_units", Mode: Flow}, []string{"A"}, []domain.Period{2021})
	require.NoError(t, err)
	require.Len(t, results, 1)

	v, ok := results[0].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 80.0, v, 1e-9)
}

func TestAllocateNothingObservedIsNull(t *testing.T) {
	a, err := NewAllocator(nil, splitCrosswalk(), epsilon, 0)
	require.NoError(t, err)

	results, err := a.Allocate(context.Background(), nil,
		Metric{Name: "rental_units", Mode: Flow}, []string{"A"}, []domain.Period{2021})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Value.IsMissing())
	assert.False(t, results[0].IsAllocated)
}

func TestNewAllocatorRejectsInvalidCrosswalk(t *testing.T) {
	cw := domain.Crosswalk{Rows: []domain.CrosswalkRow{
		{CoarseID: "Z1", FineID: "A", Weight: 0.5},
	}}
	_, err := NewAllocator(nil, cw, epsilon, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsStructural(err))
}

func TestNewAllocatorWorkerCap(t *testing.T) {
	a, err := NewAllocator(nil, splitCrosswalk(), epsilon, 0)
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), a.workers)

	a, err = NewAllocator(nil, splitCrosswalk(), epsilon, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, a.workers)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "flow", Flow.String())
	assert.Equal(t, "intensity", Intensity.String())
}
