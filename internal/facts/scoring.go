package facts

import (
	"context"
	"log/slog"
	"sort"

	"metrocli/internal/composite"
	"metrocli/pkg/contracts/domain"
)

// Component score names feeding the composite index.
const (
	ScoreIncome    = "income_score"
	ScoreHousing   = "housing_score"
	ScoreOccupancy = "occupancy_score"
	ScoreDiversity = "diversity_score"
)

// diversityRescale brings raw Shannon entropy onto the 0-100 basis. An
// entropy of 3.0 (a roughly 20-way uniform split, ln 20 ~ 3.0) maps to 100;
// anything past the ceiling clamps to 100 in the builder.
const diversityRescale = 100.0 / 3.0

// DefaultComposite is the published composite definition. Weights are fixed
// and documented; changing them is a coordination event with downstream
// consumers, the same as a column change.
func DefaultComposite() []composite.Component {
	return []composite.Component{
		{Name: ScoreIncome, Weight: 0.30, Rescale: 1.0, Neutral: composite.DefaultNeutralScore},
		{Name: ScoreHousing, Weight: 0.25, Rescale: 1.0, Neutral: composite.DefaultNeutralScore},
		{Name: ScoreOccupancy, Weight: 0.20, Rescale: 1.0, Neutral: composite.DefaultNeutralScore},
		{Name: ScoreDiversity, Weight: 0.25, Rescale: diversityRescale, Neutral: composite.DefaultNeutralScore},
	}
}

// ScoreComposite normalizes the fact columns into component scores and
// writes the composite back onto the facts. Income, housing, and occupancy
// scores are percentile-scaled within each period's cross-section; the
// diversity component passes raw entropy through its fixed rescale factor.
// Vacancy inverts: a higher vacancy rate scores lower.
func ScoreComposite(ctx context.Context, logger *slog.Logger, builder *composite.Builder, facts []domain.DerivedFact) {
	if logger == nil {
		logger = slog.Default()
	}

	byPeriod := make(map[domain.Period][]int)
	for i, f := range facts {
		byPeriod[f.Period] = append(byPeriod[f.Period], i)
	}

	periods := make([]domain.Period, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })

	rows := make([]composite.Row, 0, len(facts))
	rowIndex := make(map[string]int) // entity|period -> facts index
	for _, p := range periods {
		indices := byPeriod[p]

		incomes := make([]domain.Value, len(indices))
		units := make([]domain.Value, len(indices))
		vacancies := make([]domain.Value, len(indices))
		for j, i := range indices {
			incomes[j] = facts[i].MedianIncome
			units[j] = facts[i].RentalUnits
			vacancies[j] = facts[i].VacancyRate
		}

		incomeScores := composite.PercentileScale(incomes, false)
		housingScores := composite.PercentileScale(units, false)
		occupancyScores := composite.PercentileScale(vacancies, true)

		for j, i := range indices {
			f := facts[i]
			rows = append(rows, composite.Row{
				EntityID: f.EntityID,
				Period:   f.Period,
				Scores: map[string]domain.Value{
					ScoreIncome:    incomeScores[j],
					ScoreHousing:   housingScores[j],
					ScoreOccupancy: occupancyScores[j],
					ScoreDiversity: f.DiversityIndex,
				},
			})
			rowIndex[f.EntityID+"|"+f.Period.String()] = i
		}
	}

	for _, r := range builder.Build(ctx, rows) {
		if i, ok := rowIndex[r.EntityID+"|"+r.Period.String()]; ok {
			facts[i].CompositeScore = r.Score
		}
	}

	logger.InfoContext(ctx, "scored composite index onto facts",
		slog.Int("rows", len(facts)),
		slog.Int("periods", len(periods)))
}
