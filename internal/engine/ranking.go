package engine

import (
	"math"
	"sort"
	"time"

	"github.com/veritas-claims/venue-cli/internal/model"
)

// Rank orders recommendations in place by descending dollar improvement.
// Improvements within epsilon of each other break toward the smaller
// ordinal move, then toward the larger recommended sample size; the sort
// is stable so fully tied entries keep their region order.
func Rank(recs []model.Recommendation, epsilon float64) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := &recs[i], &recs[j]
		if math.Abs(a.DollarImprovement-b.DollarImprovement) > epsilon {
			return a.DollarImprovement > b.DollarImprovement
		}
		aDist := a.RecommendedRating.Distance(a.CurrentRating)
		bDist := b.RecommendedRating.Distance(b.CurrentRating)
		if aDist != bDist {
			return aDist < bDist
		}
		return a.RecommendedSampleSize > b.RecommendedSampleSize
	})
}

// Summarize computes the report-level aggregates. The average improvement
// covers only the regions that actually received a recommendation.
func Summarize(recs []model.Recommendation, analyzed int, windowStart, windowEnd time.Time, partial bool) model.Summary {
	var total float64
	for i := range recs {
		total += recs[i].DollarImprovement
	}
	avg := 0.0
	if len(recs) > 0 {
		avg = total / float64(len(recs))
	}
	return model.Summary{
		RegionsAnalyzed:      analyzed,
		RegionsRecommended:   len(recs),
		AvgDollarImprovement: avg,
		WindowStart:          windowStart,
		WindowEnd:            windowEnd,
		Partial:              partial,
		GeneratedAt:          time.Now().UTC(),
	}
}
