// Package aggregate implements the batch job that scans claim records,
// groups them by (venue_rating, bucket), computes per-group statistics, and
// rebuilds the statistics store atomically.
package aggregate

import (
	"context"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veritas-claims/venue-cli/internal/bucket"
	"github.com/veritas-claims/venue-cli/internal/claims"
	"github.com/veritas-claims/venue-cli/internal/config"
	"github.com/veritas-claims/venue-cli/internal/model"
	"github.com/veritas-claims/venue-cli/internal/stats"
	"github.com/veritas-claims/venue-cli/internal/store"
)

// ErrRefreshInProgress is returned when a refresh is requested while another
// one is still running. Concurrent refreshes are disallowed.
var ErrRefreshInProgress = eris.New("aggregate: refresh already in progress")

// Aggregator owns the statistics store and is the only writer to it.
type Aggregator struct {
	source claims.Source
	store  *store.Store
	cfg    config.AnalysisConfig

	running atomic.Bool
}

// New creates an Aggregator over the given claim source and store.
func New(source claims.Source, st *store.Store, cfg config.AnalysisConfig) *Aggregator {
	return &Aggregator{source: source, store: st, cfg: cfg}
}

// Refresh rebuilds the statistics store from the analysis window ending at
// now. The new snapshot is built completely off to the side and installed
// with a single swap; on any failure the prior snapshot stays in place.
func (a *Aggregator) Refresh(ctx context.Context, now time.Time) (*store.Snapshot, error) {
	_, sn, err := a.RefreshRecords(ctx, now)
	return sn, err
}

// RefreshRecords is Refresh plus the fetched window records, so callers that
// also need the raw claims (region profiling) avoid a second fetch.
func (a *Aggregator) RefreshRecords(ctx context.Context, now time.Time) ([]model.ClaimRecord, *store.Snapshot, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, nil, ErrRefreshInProgress
	}
	defer a.running.Store(false)

	windowEnd := now.UTC()
	windowStart := windowEnd.AddDate(0, -a.cfg.WindowMonths, 0)

	records, err := a.source.FetchWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, nil, eris.Wrap(err, "aggregate: fetch window")
	}

	rows, excluded := BuildRows(records, windowStart, windowEnd, windowEnd, a.cfg)
	sn := store.NewSnapshot(rows, windowStart, windowEnd, windowEnd)
	a.store.Swap(sn)

	zap.L().Info("aggregate: statistics store rebuilt",
		zap.Int("records", len(records)),
		zap.Int("rows", len(rows)),
		zap.Int("excluded_null_settlements", excluded),
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd),
	)
	return records, sn, nil
}

// EnsureBuilt builds the store if it has never been built. Used by report
// paths so a first report does not require an explicit rebuild.
func (a *Aggregator) EnsureBuilt(ctx context.Context, now time.Time) error {
	if _, err := a.store.Snapshot(); err == nil {
		return nil
	}
	_, err := a.Refresh(ctx, now)
	return err
}

// group accumulates the per-record values for one (rating, bucket) cell.
type group struct {
	actual    []float64
	predicted []float64
	absErr    []float64
}

// BuildRows bucketizes and groups the records and computes one statistics
// row per observed (rating, bucket) combination with at least one
// contributing record. Records missing either settlement value contribute to
// no metric; their count is returned for logging. Output ordering is
// deterministic for identical input.
func BuildRows(records []model.ClaimRecord, windowStart, windowEnd, builtAt time.Time, cfg config.AnalysisConfig) ([]model.GroupStatistics, int) {
	groups := make(map[model.GroupKey]*group)
	excluded := 0

	for i := range records {
		r := &records[i]
		if !r.HasSettlements() {
			excluded++
			continue
		}
		key := model.GroupKey{Rating: r.VenueRating, Bucket: bucket.Key(r)}
		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
		}
		g.actual = append(g.actual, *r.SettlementActual)
		g.predicted = append(g.predicted, *r.SettlementPredicted)
		g.absErr = append(g.absErr, math.Abs(*r.SettlementActual-*r.SettlementPredicted))
	}

	rows := make([]model.GroupStatistics, 0, len(groups))
	for key, g := range groups {
		n := len(g.actual)
		row := model.GroupStatistics{
			Key:             key,
			SampleSize:      n,
			MeanActual:      stats.Mean(g.actual),
			MedianActual:    stats.Median(g.actual),
			StdDevActual:    stats.StdDev(g.actual),
			MeanPredicted:   stats.Mean(g.predicted),
			MedianPredicted: stats.Median(g.predicted),
			MeanAbsError:    stats.Mean(g.absErr),
			MedianAbsError:  stats.Median(g.absErr),
			Unreliable:      n < cfg.MinGroupSample,
			LastUpdated:     builtAt,
			WindowStart:     windowStart,
			WindowEnd:       windowEnd,
		}
		row.CoefficientOfVariation = stats.CoefficientOfVariation(row.StdDevActual, row.MeanActual)
		row.CI95Low, row.CI95High = stats.ConfidenceInterval95(row.MeanActual, row.StdDevActual, n, cfg.HighConfidenceSample)
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return lessKey(rows[i].Key, rows[j].Key) })
	return rows, excluded
}

// categoryRank orders Low < Medium < High for deterministic row ordering.
var categoryRank = map[model.Category]int{
	model.CategoryLow:    0,
	model.CategoryMedium: 1,
	model.CategoryHigh:   2,
}

func lessKey(a, b model.GroupKey) bool {
	if a.Rating != b.Rating {
		return a.Rating.Ordinal() < b.Rating.Ordinal()
	}
	if a.Bucket.Severity != b.Bucket.Severity {
		return categoryRank[a.Bucket.Severity] < categoryRank[b.Bucket.Severity]
	}
	if a.Bucket.Causation != b.Bucket.Causation {
		return categoryRank[a.Bucket.Causation] < categoryRank[b.Bucket.Causation]
	}
	return a.Bucket.ImpactOnLife < b.Bucket.ImpactOnLife
}
