// Package monitoring watches the health of the statistics store and raises
// webhook alerts when the data backing recommendations degrades.
package monitoring

import (
	"errors"
	"time"

	"github.com/veritas-claims/venue-cli/internal/model"
	"github.com/veritas-claims/venue-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of statistics store health.
type MetricsSnapshot struct {
	StoreBuilt bool `json:"store_built"`
	GroupRows  int  `json:"group_rows"`

	// Share of group rows below the minimum sample, 0..1.
	UnreliableShare float64 `json:"unreliable_share"`

	// Number of distinct venue ratings with at least one group row. Below
	// the full domain size the recommendation engine cannot compare every
	// candidate.
	RatingsCovered int `json:"ratings_covered"`

	TotalSample int `json:"total_sample"`

	SnapshotAge time.Duration `json:"snapshot_age_ns"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	CollectedAt time.Time     `json:"collected_at"`
}

// Collector gathers health metrics from the statistics store.
type Collector struct {
	store *store.Store
}

// NewCollector creates a metrics collector over the store.
func NewCollector(st *store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of store health. A never-built store is a valid
// observation, not an error: the snapshot simply reports StoreBuilt false.
func (c *Collector) Collect() (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	sn, err := c.store.Snapshot()
	if err != nil {
		if errors.Is(err, store.ErrNotBuilt) {
			return snap, nil
		}
		return nil, err
	}

	rows := sn.Rows()
	snap.StoreBuilt = true
	snap.GroupRows = len(rows)
	snap.SnapshotAge = snap.CollectedAt.Sub(sn.BuiltAt())
	snap.WindowStart, snap.WindowEnd = sn.Window()

	unreliable := 0
	covered := make(map[model.VenueRating]struct{})
	for i := range rows {
		if rows[i].Unreliable {
			unreliable++
		}
		covered[rows[i].Key.Rating] = struct{}{}
		snap.TotalSample += rows[i].SampleSize
	}
	snap.RatingsCovered = len(covered)
	if len(rows) > 0 {
		snap.UnreliableShare = float64(unreliable) / float64(len(rows))
	}

	return snap, nil
}
