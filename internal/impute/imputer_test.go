package impute

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "metrocli/internal/errors"
	"metrocli/pkg/contracts/domain"
)

func validFactors() []domain.AdjustmentFactor {
	return []domain.AdjustmentFactor{
		{Period: 2006, Factor: 0.8215},
		{Period: 2011, Factor: 0.9068},
		{Period: 2016, Factor: 1.0},
	}
}

func TestNewImputerValidatesFactors(t *testing.T) {
	tests := []struct {
		name     string
		baseline domain.Period
		factors  []domain.AdjustmentFactor
		wantErr  error
	}{
		{name: "valid table", baseline: 2016, factors: validFactors()},
		{
			name:     "missing baseline factor",
			baseline: 2021,
			factors:  validFactors(),
			wantErr:  apperrors.ErrBaselineFactor,
		},
		{
			name:     "baseline factor not 1.0",
			baseline: 2011,
			factors:  validFactors(),
			wantErr:  apperrors.ErrBaselineFactor,
		},
		{
			name:     "non-positive factor",
			baseline: 2016,
			factors: []domain.AdjustmentFactor{
				{Period: 2011, Factor: -0.5},
				{Period: 2016, Factor: 1.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := NewImputer(nil, tt.baseline, tt.factors, 0)
			if tt.name == "valid table" {
				require.NoError(t, err)
				assert.Equal(t, tt.baseline, im.Baseline())
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsStructural(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewImputerWorkerCap(t *testing.T) {
	im, err := NewImputer(nil, 2016, validFactors(), 0)
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), im.workers)

	im, err = NewImputer(nil, 2016, validFactors(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, im.workers)
}

func TestImputeBackwardFromBaseline(t *testing.T) {
	im, err := NewImputer(nil, 2016, validFactors(), 0)
	require.NoError(t, err)

	observations := []domain.TemporalObservation{
		{EntityID: "N001", Period: 2016, Metric: "median_income", Value: domain.ObservedValue(80000)},
	}
	periods := []domain.Period{2006, 2011, 2016, 2021}

	results, err := im.Impute(context.Background(), observations, periods)
	require.NoError(t, err)
	require.Len(t, results, 4)

	byPeriod := make(map[domain.Period]Result)
	for _, r := range results {
		byPeriod[r.Period] = r
	}

	// Gaps before the baseline fill from baseline x factor.
	v, ok := byPeriod[2011].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 72544.0, v, 1e-9)
	assert.True(t, byPeriod[2011].IsImputed)

	v, ok = byPeriod[2006].Value.Float()
	require.True(t, ok)
	assert.InDelta(t, 80000*0.8215, v, 1e-9)
	assert.True(t, byPeriod[2006].IsImputed)

	// The observed baseline passes through unflagged.
	v, ok = byPeriod[2016].Value.Float()
	require.True(t, ok)
	assert.Equal(t, 80000.0, v)
	assert.False(t, byPeriod[2016].IsImputed)

	// No forward extrapolation past the baseline.
	assert.True(t, byPeriod[2021].Value.IsMissing())
	assert.False(t, byPeriod[2021].IsImputed)
}

func TestImputeObservedValueWins(t *testing.T) {
	im, err := NewImputer(nil, 2016, validFactors(), 0)
	require.NoError(t, err)

	observations := []domain.TemporalObservation{
		{EntityID: "N001", Period: 2011, Metric: "median_income", Value: domain.ObservedValue(70100)},
		{EntityID: "N001", Period: 2016, Metric: "median_income", Value: domain.ObservedValue(80000)},
	}

	results, err := im.Impute(context.Background(), observations, []domain.Period{2011, 2016})
	require.NoError(t, err)

	for _, r := range results {
		if r.Period == 2011 {
			v, ok := r.Value.Float()
			require.True(t, ok)
			assert.Equal(t, 70100.0, v)
			assert.False(t, r.IsImputed, "observed value must never be overwritten")
		}
	}
}

func TestImputeSuppressedPropagates(t *testing.T) {
	im, err := NewImputer(nil, 2016, validFactors(), 0)
	require.NoError(t, err)

	observations := []domain.TemporalObservation{
		{EntityID: "N001", Period: 2011, Metric: "median_income", Value: domain.SuppressedValue()},
		{EntityID: "N001", Period: 2016, Metric: "median_income", Value: domain.ObservedValue(80000)},
	}

	results, err := im.Impute(context.Background(), observations, []domain.Period{2011, 2016})
	require.NoError(t, err)

	for _, r := range results {
		if r.Period == 2011 {
			assert.True(t, r.Value.IsSuppressed(), "suppression must not be replaced with an estimate")
			assert.False(t, r.IsImputed)
		}
	}
}

func TestImputeNoBaselineObservationLeavesNulls(t *testing.T) {
	im, err := NewImputer(nil, 2016, validFactors(), 0)
	require.NoError(t, err)

	observations := []domain.TemporalObservation{
		{EntityID: "N001", Period: 2021, Metric: "median_income", Value: domain.ObservedValue(90000)},
	}

	results, err := im.Impute(context.Background(), observations, []domain.Period{2011, 2016, 2021})
	require.NoError(t, err)

	for _, r := range results {
		switch r.Period {
		case 2021:
			assert.True(t, r.Value.IsObserved())
		default:
			assert.True(t, r.Value.IsMissing(), "period %d", r.Period)
			assert.False(t, r.IsImputed)
		}
	}
}

func TestImputeUnknownFactorLeavesNull(t *testing.T) {
	factors := []domain.AdjustmentFactor{{Period: 2016, Factor: 1.0}}
	im, err := NewImputer(nil, 2016, factors, 0)
	require.NoError(t, err)

	observations := []domain.TemporalObservation{
		{EntityID: "N001", Period: 2016, Metric: "median_income", Value: domain.ObservedValue(80000)},
	}

	results, err := im.Impute(context.Background(), observations, []domain.Period{2011, 2016})
	require.NoError(t, err)

	for _, r := range results {
		if r.Period == 2011 {
			assert.True(t, r.Value.IsMissing())
			assert.False(t, r.IsImputed)
		}
	}
}

func TestImputeMultipleSeriesIndependent(t *testing.T) {
	im, err := NewImputer(nil, 2016, validFactors(), 0)
	require.NoError(t, err)

	observations := []domain.TemporalObservation{
		{EntityID: "N001", Period: 2016, Metric: "median_income", Value: domain.ObservedValue(80000)},
		{EntityID: "N002", Period: 2016, Metric: "median_income", Value: domain.ObservedValue(64000)},
		{EntityID: "N001", Period: 2016, Metric: "median_rent", Value: domain.ObservedValue(1500)},
	}

	results, err := im.Impute(context.Background(), observations, []domain.Period{2011, 2016})
	require.NoError(t, err)
	// Three series x two periods.
	require.Len(t, results, 6)

	for _, r := range results {
		if r.Period != 2011 {
			continue
		}
		v, ok := r.Value.Float()
		require.True(t, ok)
		switch {
		case r.EntityID == "N001" && r.Metric == "median_income":
			assert.InDelta(t, 72544.0, v, 1e-9)
		case r.EntityID == "N002" && r.Metric == "median_income":
			assert.InDelta(t, 64000*0.9068, v, 1e-9)
		case r.EntityID == "N001" && r.Metric == "median_rent":
			assert.InDelta(t, 1500*0.9068, v, 1e-9)
		}
	}
}
