package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-claims/venue-cli/internal/config"
	"github.com/veritas-claims/venue-cli/internal/model"
	"github.com/veritas-claims/venue-cli/internal/store"
)

var engineCfg = config.AnalysisConfig{
	WindowMonths:          24,
	MinGroupSample:        10,
	HighConfidenceSample:  30,
	MinDollarImprovement:  5000,
	MinPercentImprovement: 15,
	TieEpsilon:            0.01,
}

var testBucket = model.BucketKey{
	Severity:     model.CategoryHigh,
	Causation:    model.CategoryMedium,
	ImpactOnLife: 3,
}

func statRow(rating model.VenueRating, bkt model.BucketKey, n int, mae float64) model.GroupStatistics {
	return model.GroupStatistics{
		Key:            model.GroupKey{Rating: rating, Bucket: bkt},
		SampleSize:     n,
		MeanAbsError:   mae,
		MedianAbsError: mae,
		MeanActual:     mae * 4,
		Unreliable:     n < engineCfg.MinGroupSample,
		LastUpdated:    time.Now().UTC(),
	}
}

func builtStore(t *testing.T, rows ...model.GroupStatistics) *store.Store {
	t.Helper()
	st := store.New()
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(2, 0, 0)
	st.Swap(store.NewSnapshot(rows, start, end, time.Now().UTC()))
	return st
}

func profile(county, state string, rating model.VenueRating) model.RegionProfile {
	return model.RegionProfile{
		Region:         model.RegionKey{County: county, State: state},
		CurrentRating:  rating,
		DominantBucket: testBucket,
		ClaimCount:     40,
	}
}

func ptr(v float64) *float64 { return &v }

func claimFor(county, state string, rating model.VenueRating, iol int) model.ClaimRecord {
	return model.ClaimRecord{
		SettlementActual:    ptr(50000),
		SettlementPredicted: ptr(45000),
		VenueRating:         rating,
		SeverityScore:       2000, // high
		CausationScore:      200,  // medium
		ImpactOnLife:        iol,
		County:              county,
		State:               state,
		CloseDate:           time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProfiles_ModalRatingAndBucket(t *testing.T) {
	records := []model.ClaimRecord{
		claimFor("Travis", "TX", model.RatingModerate, 3),
		claimFor("Travis", "TX", model.RatingModerate, 3),
		claimFor("Travis", "TX", model.RatingLiberal, 2),
		claimFor("Bexar", "TX", model.RatingConservative, 1),
	}

	profiles := Profiles(records)
	require.Len(t, profiles, 2)

	// Sorted by state then county.
	assert.Equal(t, "Bexar", profiles[0].Region.County)
	assert.Equal(t, "Travis", profiles[1].Region.County)

	travis := profiles[1]
	assert.Equal(t, model.RatingModerate, travis.CurrentRating)
	assert.Equal(t, 3, travis.DominantBucket.ImpactOnLife)
	assert.Equal(t, 3, travis.ClaimCount)
}

func TestProfiles_TieBreaksAreDeterministic(t *testing.T) {
	// One claim each: the lower-ordinal rating and the smaller bucket win.
	records := []model.ClaimRecord{
		claimFor("Travis", "TX", model.RatingLiberal, 4),
		claimFor("Travis", "TX", model.RatingConservative, 1),
	}

	profiles := Profiles(records)
	require.Len(t, profiles, 1)
	assert.Equal(t, model.RatingConservative, profiles[0].CurrentRating)
	assert.Equal(t, 1, profiles[0].DominantBucket.ImpactOnLife)
}

func TestProfiles_EmptyInput(t *testing.T) {
	assert.Empty(t, Profiles(nil))
}

func TestRun_RecommendsClearImprovement(t *testing.T) {
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 20000),
		statRow(model.RatingModeratelyConservative, testBucket, 38, 12000),
	)
	eng := New(st, engineCfg, 2)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)

	rec := report.Recommendations[0]
	assert.Equal(t, model.RatingModeratelyConservative, rec.RecommendedRating)
	assert.InDelta(t, 8000, rec.DollarImprovement, 0.001)
	assert.InDelta(t, 40, rec.PercentImprovement, 0.001)
	assert.Equal(t, model.ConfidenceHigh, rec.Confidence)
	assert.Equal(t, model.FallbackExact, rec.CurrentLevel)
	assert.Equal(t, model.FallbackExact, rec.RecommendedLevel)

	assert.Equal(t, 1, report.Summary.RegionsAnalyzed)
	assert.Equal(t, 1, report.Summary.RegionsRecommended)
	assert.False(t, report.Summary.Partial)
	assert.NotEmpty(t, report.ID)
}

func TestRun_DollarBelowThresholdSuppressed(t *testing.T) {
	// $3,000 improvement is 30 percent but under the dollar floor.
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 10000),
		statRow(model.RatingConservative, testBucket, 45, 7000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, 1, report.Summary.RegionsAnalyzed)
	assert.Equal(t, 0, report.Summary.RegionsRecommended)
}

func TestRun_PercentBelowThresholdSuppressed(t *testing.T) {
	// $6,000 clears the dollar floor but is only 6 percent of current error.
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 100000),
		statRow(model.RatingConservative, testBucket, 45, 94000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Recommendations)
}

func TestRun_ThresholdBoundariesInclusive(t *testing.T) {
	cfg := engineCfg
	cfg.MinPercentImprovement = 10

	t.Run("exactly at both thresholds", func(t *testing.T) {
		st := builtStore(t,
			statRow(model.RatingModerate, testBucket, 45, 50000),
			statRow(model.RatingConservative, testBucket, 45, 45000),
		)
		report, err := New(st, cfg, 1).Run(context.Background(), []model.RegionProfile{
			profile("Travis", "TX", model.RatingModerate),
		})
		require.NoError(t, err)
		require.Len(t, report.Recommendations, 1)
		assert.InDelta(t, 5000, report.Recommendations[0].DollarImprovement, 0.001)
		assert.InDelta(t, 10, report.Recommendations[0].PercentImprovement, 0.001)
	})

	t.Run("just under the dollar floor", func(t *testing.T) {
		st := builtStore(t,
			statRow(model.RatingModerate, testBucket, 45, 50000),
			statRow(model.RatingConservative, testBucket, 45, 45000.01),
		)
		report, err := New(st, cfg, 1).Run(context.Background(), []model.RegionProfile{
			profile("Travis", "TX", model.RatingModerate),
		})
		require.NoError(t, err)
		assert.Empty(t, report.Recommendations)
	})
}

func TestRun_ZeroCurrentErrorNeverRecommends(t *testing.T) {
	// A perfect current group cannot be improved; the percent term is
	// defined as zero rather than a division blowup.
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 0),
		statRow(model.RatingConservative, testBucket, 45, 0),
		statRow(model.RatingLiberal, testBucket, 45, 3000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Recommendations)
}

func TestRun_PicksLargestDollarImprovement(t *testing.T) {
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 30000),
		statRow(model.RatingConservative, testBucket, 45, 22000),
		statRow(model.RatingLiberal, testBucket, 45, 18000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, model.RatingLiberal, report.Recommendations[0].RecommendedRating)
	assert.InDelta(t, 12000, report.Recommendations[0].DollarImprovement, 0.001)
}

func TestRun_TieBreaksTowardCloserRating(t *testing.T) {
	// Conservative and moderately_conservative improve by the same amount;
	// the ordinally closer rating wins.
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 30000),
		statRow(model.RatingConservative, testBucket, 45, 20000),
		statRow(model.RatingModeratelyConservative, testBucket, 45, 20000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, model.RatingModeratelyConservative, report.Recommendations[0].RecommendedRating)
}

func TestRun_TieBreaksTowardLargerSample(t *testing.T) {
	// Equal improvement and equal ordinal distance: the bigger sample wins.
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 30000),
		statRow(model.RatingModeratelyConservative, testBucket, 31, 20000),
		statRow(model.RatingModeratelyLiberal, testBucket, 80, 20000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, model.RatingModeratelyLiberal, report.Recommendations[0].RecommendedRating)
}

func TestRun_ConfidenceMediumWhenEitherSideBelowHigh(t *testing.T) {
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 20000),
		statRow(model.RatingConservative, testBucket, 12, 12000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, model.ConfidenceMedium, report.Recommendations[0].Confidence)
}

func TestConfidenceLabels(t *testing.T) {
	tests := []struct {
		name               string
		currentN, candN    int
		want               model.Confidence
	}{
		{"both at high minimum", 30, 30, model.ConfidenceHigh},
		{"candidate below high", 45, 29, model.ConfidenceMedium},
		{"current below high", 12, 45, model.ConfidenceMedium},
		{"both at group minimum", 10, 10, model.ConfidenceMedium},
		{"candidate below group minimum", 45, 9, model.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confidence(tt.currentN, tt.candN, engineCfg))
		})
	}
}

func TestRun_FallbackResolutionFeedsComparison(t *testing.T) {
	other := testBucket
	other.ImpactOnLife = 1

	// The candidate rating has no exact row for the region's bucket; the
	// no-impact fallback supplies it.
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 20000),
		statRow(model.RatingConservative, other, 40, 8000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 1)

	rec := report.Recommendations[0]
	assert.Equal(t, model.FallbackNoImpact, rec.RecommendedLevel)
	assert.InDelta(t, 12000, rec.DollarImprovement, 0.001)
}

func TestRun_RegionSkippedWhenNoLevelResolves(t *testing.T) {
	// Every row under the current rating is below the minimum sample even
	// after combining, so the region produces nothing.
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 4, 20000),
		statRow(model.RatingConservative, testBucket, 45, 8000),
	)
	eng := New(st, engineCfg, 1)

	report, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, 1, report.Summary.RegionsAnalyzed)
}

func TestRun_StoreNotBuilt(t *testing.T) {
	eng := New(store.New(), engineCfg, 1)

	_, err := eng.Run(context.Background(), []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotBuilt))
}

func TestRun_ExpiredDeadlineYieldsPartialReport(t *testing.T) {
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 20000),
		statRow(model.RatingConservative, testBucket, 45, 12000),
	)
	eng := New(st, engineCfg, 1)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	report, err := eng.Run(ctx, []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
		profile("Bexar", "TX", model.RatingModerate),
	})
	require.NoError(t, err)
	assert.True(t, report.Summary.Partial)
	assert.Equal(t, 0, report.Summary.RegionsAnalyzed)
	assert.Empty(t, report.Recommendations)
}

func TestRun_RankingOrdersByDollarDescending(t *testing.T) {
	bexar := testBucket
	bexar.ImpactOnLife = 9 // isolate the two regions onto distinct buckets

	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 20000),
		statRow(model.RatingConservative, testBucket, 45, 12000),
		statRow(model.RatingModerate, bexar, 45, 50000),
		statRow(model.RatingConservative, bexar, 45, 30000),
	)
	eng := New(st, engineCfg, 2)

	travis := profile("Travis", "TX", model.RatingModerate)
	bexarProfile := profile("Bexar", "TX", model.RatingModerate)
	bexarProfile.DominantBucket = bexar

	report, err := eng.Run(context.Background(), []model.RegionProfile{travis, bexarProfile})
	require.NoError(t, err)
	require.Len(t, report.Recommendations, 2)

	assert.Equal(t, "Bexar", report.Recommendations[0].County)
	assert.InDelta(t, 20000, report.Recommendations[0].DollarImprovement, 0.001)
	assert.Equal(t, "Travis", report.Recommendations[1].County)
	assert.InDelta(t, 14000, report.Summary.AvgDollarImprovement, 0.001)
}

func TestRank_StableOnFullTies(t *testing.T) {
	recs := []model.Recommendation{
		{County: "Alpha", CurrentRating: model.RatingModerate, RecommendedRating: model.RatingModeratelyConservative, RecommendedSampleSize: 40, DollarImprovement: 9000},
		{County: "Beta", CurrentRating: model.RatingModerate, RecommendedRating: model.RatingModeratelyConservative, RecommendedSampleSize: 40, DollarImprovement: 9000},
	}
	Rank(recs, 0.01)
	assert.Equal(t, "Alpha", recs[0].County)
	assert.Equal(t, "Beta", recs[1].County)
}

func TestSummarize_Empty(t *testing.T) {
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	s := Summarize(nil, 5, start, start.AddDate(2, 0, 0), false)
	assert.Equal(t, 5, s.RegionsAnalyzed)
	assert.Zero(t, s.RegionsRecommended)
	assert.Zero(t, s.AvgDollarImprovement)
	assert.False(t, s.GeneratedAt.IsZero())
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	st := builtStore(t,
		statRow(model.RatingModerate, testBucket, 45, 30000),
		statRow(model.RatingConservative, testBucket, 45, 22000),
		statRow(model.RatingLiberal, testBucket, 45, 18000),
	)
	eng := New(st, engineCfg, 4)

	profiles := []model.RegionProfile{
		profile("Travis", "TX", model.RatingModerate),
		profile("Bexar", "TX", model.RatingModerate),
		profile("Harris", "TX", model.RatingModerate),
	}

	first, err := eng.Run(context.Background(), profiles)
	require.NoError(t, err)
	second, err := eng.Run(context.Background(), profiles)
	require.NoError(t, err)

	require.Len(t, second.Recommendations, len(first.Recommendations))
	for i := range first.Recommendations {
		assert.Equal(t, first.Recommendations[i], second.Recommendations[i])
	}
}
