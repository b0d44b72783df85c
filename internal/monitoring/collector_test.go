package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-claims/venue-cli/internal/model"
	"github.com/veritas-claims/venue-cli/internal/store"
)

func healthRow(rating model.VenueRating, iol, n int, unreliable bool) model.GroupStatistics {
	return model.GroupStatistics{
		Key: model.GroupKey{
			Rating: rating,
			Bucket: model.BucketKey{Severity: model.CategoryLow, Causation: model.CategoryLow, ImpactOnLife: iol},
		},
		SampleSize: n,
		Unreliable: unreliable,
	}
}

func TestCollect_NotBuilt(t *testing.T) {
	c := NewCollector(store.New())

	snap, err := c.Collect()
	require.NoError(t, err)
	assert.False(t, snap.StoreBuilt)
	assert.Zero(t, snap.GroupRows)
}

func TestCollect_BuiltStore(t *testing.T) {
	rows := []model.GroupStatistics{
		healthRow(model.RatingConservative, 1, 40, false),
		healthRow(model.RatingModerate, 1, 25, false),
		healthRow(model.RatingModerate, 2, 4, true),
		healthRow(model.RatingLiberal, 1, 31, false),
	}
	st := store.New()
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	built := time.Now().UTC().Add(-2 * time.Hour)
	st.Swap(store.NewSnapshot(rows, start, start.AddDate(2, 0, 0), built))

	snap, err := NewCollector(st).Collect()
	require.NoError(t, err)

	assert.True(t, snap.StoreBuilt)
	assert.Equal(t, 4, snap.GroupRows)
	assert.Equal(t, 3, snap.RatingsCovered)
	assert.Equal(t, 100, snap.TotalSample)
	assert.InDelta(t, 0.25, snap.UnreliableShare, 0.001)
	assert.InDelta(t, 2, snap.SnapshotAge.Hours(), 0.1)
	assert.Equal(t, start, snap.WindowStart)
}
