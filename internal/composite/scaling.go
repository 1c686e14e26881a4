package composite

import (
	"math"
	"sort"

	"metrocli/pkg/contracts/domain"
)

// PercentileScale maps raw values onto a 0-100 percentile basis across the
// cross-section, so metrics measured on arbitrary scales can feed the
// composite. Missing values stay missing. invert flips the scale for
// metrics where a higher raw value means a worse outcome.
//
// The scale anchors on the 5th and 95th percentiles: values inside the band
// spread over 5-95, the tails compress into 0-5 and 95-100. That keeps a
// single outlier from flattening everyone else's scores.
func PercentileScale(values []domain.Value, invert bool) []domain.Value {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.Float(); ok {
			observed = append(observed, f)
		}
	}

	out := make([]domain.Value, len(values))
	for i := range out {
		out[i] = domain.MissingValue()
	}
	if len(observed) == 0 {
		return out
	}
	if len(observed) == 1 {
		for i, v := range values {
			if v.IsObserved() {
				out[i] = domain.ObservedValue(50)
			}
		}
		return out
	}

	sorted := make([]float64, len(observed))
	copy(sorted, observed)
	sort.Float64s(sorted)

	p5 := percentileValue(sorted, 0.05)
	p95 := percentileValue(sorted, 0.95)

	for i, v := range values {
		f, ok := v.Float()
		if !ok {
			continue
		}
		var scaled float64
		switch {
		case math.Abs(p95-p5) < 1e-9:
			scaled = 50
		case f <= p5:
			if f <= sorted[0] || p5 == sorted[0] {
				scaled = 0
			} else {
				scaled = 5 * (f - sorted[0]) / (p5 - sorted[0])
			}
		case f >= p95:
			if f >= sorted[len(sorted)-1] || p95 == sorted[len(sorted)-1] {
				scaled = 100
			} else {
				scaled = 95 + 5*(f-p95)/(sorted[len(sorted)-1]-p95)
			}
		default:
			scaled = 5 + 90*(f-p5)/(p95-p5)
		}
		if invert {
			scaled = 100 - scaled
		}
		out[i] = domain.ObservedValue(scaled)
	}
	return out
}

// percentileValue interpolates the value at a percentile of a sorted slice.
func percentileValue(sorted []float64, percentile float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if percentile <= 0 {
		return sorted[0]
	}
	if percentile >= 1 {
		return sorted[n-1]
	}
	index := percentile * float64(n-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	frac := index - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
