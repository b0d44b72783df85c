// Package store holds the pre-aggregated settlement statistics and serves
// the exact and fallback lookups issued by the recommendation engine.
//
// The store is read-mostly: the aggregator builds a complete Snapshot off to
// the side and installs it with a single atomic pointer swap, so concurrent
// readers always observe either the whole old or the whole new row set.
package store

import (
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veritas-claims/venue-cli/internal/model"
	"github.com/veritas-claims/venue-cli/internal/stats"
)

// ErrNotBuilt is returned when the statistics store has never been built or
// holds zero rows. Callers must surface it rather than report an empty but
// "successful" result.
var ErrNotBuilt = eris.New("store: statistics not built")

// partialKey indexes exact rows with impact_on_life dropped.
type partialKey struct {
	Rating    model.VenueRating
	Severity  model.Category
	Causation model.Category
}

// Snapshot is one immutable build of the statistics table plus its indexes.
type Snapshot struct {
	rows []model.GroupStatistics

	exact    map[model.GroupKey]int
	partial  map[partialKey][]int
	byRating map[model.VenueRating][]int

	builtAt     time.Time
	windowStart time.Time
	windowEnd   time.Time
}

// NewSnapshot indexes the given rows. Rows are keyed uniquely; a duplicate
// key keeps the last row, which cannot happen with aggregator-produced input.
func NewSnapshot(rows []model.GroupStatistics, windowStart, windowEnd, builtAt time.Time) *Snapshot {
	sn := &Snapshot{
		rows:        rows,
		exact:       make(map[model.GroupKey]int, len(rows)),
		partial:     make(map[partialKey][]int),
		byRating:    make(map[model.VenueRating][]int),
		builtAt:     builtAt,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	}
	for i, row := range rows {
		sn.exact[row.Key] = i
		pk := partialKey{
			Rating:    row.Key.Rating,
			Severity:  row.Key.Bucket.Severity,
			Causation: row.Key.Bucket.Causation,
		}
		sn.partial[pk] = append(sn.partial[pk], i)
		sn.byRating[row.Key.Rating] = append(sn.byRating[row.Key.Rating], i)
	}
	return sn
}

// Rows returns the underlying row set. Callers must not mutate it.
func (sn *Snapshot) Rows() []model.GroupStatistics { return sn.rows }

// BuiltAt returns when this snapshot was assembled.
func (sn *Snapshot) BuiltAt() time.Time { return sn.builtAt }

// Window returns the analysis window the snapshot covers.
func (sn *Snapshot) Window() (start, end time.Time) { return sn.windowStart, sn.windowEnd }

// Exact returns the point-lookup row for the full composite key.
func (sn *Snapshot) Exact(key model.GroupKey) (model.GroupStatistics, bool) {
	i, ok := sn.exact[key]
	if !ok {
		return model.GroupStatistics{}, false
	}
	return sn.rows[i], true
}

// Combine produces the on-the-fly weighted re-aggregation of the exact rows
// matching (rating, severity, causation), impact_on_life dropped.
func (sn *Snapshot) Combine(rating model.VenueRating, severity, causation model.Category) (model.GroupStatistics, bool) {
	idx := sn.partial[partialKey{Rating: rating, Severity: severity, Causation: causation}]
	return sn.combineRows(idx, rating)
}

// CombineRating weight-combines every row stored under the rating,
// regardless of bucket. This is the coarsest fallback level.
func (sn *Snapshot) CombineRating(rating model.VenueRating) (model.GroupStatistics, bool) {
	return sn.combineRows(sn.byRating[rating], rating)
}

// combineRows performs the sample-size-weighted combination. Mean metrics
// combine exactly; medians combine as weighted medians-of-medians, an
// accepted approximation for fallback rows that are never persisted.
func (sn *Snapshot) combineRows(idx []int, rating model.VenueRating) (model.GroupStatistics, bool) {
	if len(idx) == 0 {
		return model.GroupStatistics{}, false
	}
	if len(idx) == 1 {
		return sn.rows[idx[0]], true
	}

	n := len(idx)
	weights := make([]int, n)
	meansActual := make([]float64, n)
	mediansActual := make([]float64, n)
	stddevsActual := make([]float64, n)
	meansPredicted := make([]float64, n)
	mediansPredicted := make([]float64, n)
	meansAbsErr := make([]float64, n)
	mediansAbsErr := make([]float64, n)

	total := 0
	for i, j := range idx {
		row := sn.rows[j]
		weights[i] = row.SampleSize
		total += row.SampleSize
		meansActual[i] = row.MeanActual
		mediansActual[i] = row.MedianActual
		stddevsActual[i] = row.StdDevActual
		meansPredicted[i] = row.MeanPredicted
		mediansPredicted[i] = row.MedianPredicted
		meansAbsErr[i] = row.MeanAbsError
		mediansAbsErr[i] = row.MedianAbsError
	}
	if total == 0 {
		return model.GroupStatistics{}, false
	}

	combined := model.GroupStatistics{
		Key:             model.GroupKey{Rating: rating},
		SampleSize:      total,
		MeanActual:      stats.WeightedMean(meansActual, weights),
		MedianActual:    stats.WeightedMean(mediansActual, weights),
		StdDevActual:    stats.PooledStdDev(stddevsActual, weights),
		MeanPredicted:   stats.WeightedMean(meansPredicted, weights),
		MedianPredicted: stats.WeightedMean(mediansPredicted, weights),
		MeanAbsError:    stats.WeightedMean(meansAbsErr, weights),
		MedianAbsError:  stats.WeightedMean(mediansAbsErr, weights),
		LastUpdated:     sn.builtAt,
		WindowStart:     sn.windowStart,
		WindowEnd:       sn.windowEnd,
	}
	combined.CoefficientOfVariation = stats.CoefficientOfVariation(combined.StdDevActual, combined.MeanActual)
	return combined, true
}

// Resolved is a group lookup result together with the fallback level that
// produced it.
type Resolved struct {
	Stats model.GroupStatistics
	Level model.FallbackLevel
}

// Resolve walks the fallback chain exact -> impact dropped -> rating only,
// returning the first level whose resolved sample size meets minSample.
// Rows flagged unreliable still feed the coarser combinations, but are never
// returned directly. The second return is false when even the coarsest
// level stays below minSample.
func (sn *Snapshot) Resolve(rating model.VenueRating, bucket model.BucketKey, minSample int) (Resolved, bool) {
	if row, ok := sn.Exact(model.GroupKey{Rating: rating, Bucket: bucket}); ok && row.SampleSize >= minSample {
		return Resolved{Stats: row, Level: model.FallbackExact}, true
	}
	if row, ok := sn.Combine(rating, bucket.Severity, bucket.Causation); ok && row.SampleSize >= minSample {
		return Resolved{Stats: row, Level: model.FallbackNoImpact}, true
	}
	if row, ok := sn.CombineRating(rating); ok && row.SampleSize >= minSample {
		return Resolved{Stats: row, Level: model.FallbackRatingOnly}, true
	}
	return Resolved{}, false
}

// Status describes the store for the rebuild trigger and status surfaces.
type Status struct {
	Built       bool      `json:"built"`
	Rows        int       `json:"rows"`
	LastUpdated time.Time `json:"last_updated"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Store holds the current snapshot behind an atomic pointer.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// New creates an empty store; Snapshot() errors until the first Swap.
func New() *Store {
	return &Store{}
}

// Swap atomically installs a new snapshot. The previous snapshot stays valid
// for readers that already hold it.
func (s *Store) Swap(sn *Snapshot) {
	s.current.Store(sn)
}

// Snapshot returns the current snapshot, or ErrNotBuilt when the store was
// never built or holds zero rows.
func (s *Store) Snapshot() (*Snapshot, error) {
	sn := s.current.Load()
	if sn == nil || len(sn.rows) == 0 {
		return nil, ErrNotBuilt
	}
	return sn, nil
}

// Status reports the current store state without error semantics.
func (s *Store) Status() Status {
	sn := s.current.Load()
	if sn == nil {
		return Status{}
	}
	return Status{
		Built:       len(sn.rows) > 0,
		Rows:        len(sn.rows),
		LastUpdated: sn.builtAt,
		WindowStart: sn.windowStart,
		WindowEnd:   sn.windowEnd,
	}
}
