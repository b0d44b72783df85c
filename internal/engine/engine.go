// Package engine implements the per-region recommendation algorithm: it
// derives each region's representative claim profile, resolves current and
// candidate venue-rating statistics through the store's fallback chain, and
// applies the dollar-based decision rule.
package engine

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veritas-claims/venue-cli/internal/bucket"
	"github.com/veritas-claims/venue-cli/internal/config"
	"github.com/veritas-claims/venue-cli/internal/model"
	"github.com/veritas-claims/venue-cli/internal/store"
)

// Engine evaluates regions against the statistics store. It is read-only
// against the store and safe for concurrent report runs.
type Engine struct {
	store   *store.Store
	cfg     config.AnalysisConfig
	workers int
}

// New creates an Engine. workers <= 0 falls back to GOMAXPROCS.
func New(st *store.Store, cfg config.AnalysisConfig, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{store: st, cfg: cfg, workers: workers}
}

// Profiles derives one RegionProfile per region observed in the records:
// the most frequent venue rating and the most frequent bucket tuple.
// Frequency ties break deterministically toward the lower-ordinal rating
// and the smaller bucket key so repeated runs agree. Regions with zero
// in-window claims simply never appear.
func Profiles(records []model.ClaimRecord) []model.RegionProfile {
	type tally struct {
		ratings map[model.VenueRating]int
		buckets map[model.BucketKey]int
		count   int
	}
	byRegion := make(map[model.RegionKey]*tally)

	for i := range records {
		r := &records[i]
		key := r.Region()
		tl := byRegion[key]
		if tl == nil {
			tl = &tally{
				ratings: make(map[model.VenueRating]int),
				buckets: make(map[model.BucketKey]int),
			}
			byRegion[key] = tl
		}
		tl.ratings[r.VenueRating]++
		tl.buckets[bucket.Key(r)]++
		tl.count++
	}

	profiles := make([]model.RegionProfile, 0, len(byRegion))
	for key, tl := range byRegion {
		profiles = append(profiles, model.RegionProfile{
			Region:         key,
			CurrentRating:  modalRating(tl.ratings),
			DominantBucket: modalBucket(tl.buckets),
			ClaimCount:     tl.count,
		})
	}
	sort.Slice(profiles, func(i, j int) bool {
		a, b := profiles[i].Region, profiles[j].Region
		if a.State != b.State {
			return a.State < b.State
		}
		return a.County < b.County
	})
	return profiles
}

func modalRating(counts map[model.VenueRating]int) model.VenueRating {
	var best model.VenueRating
	bestCount := -1
	for _, r := range model.Ratings() {
		if c := counts[r]; c > bestCount {
			best = r
			bestCount = c
		}
	}
	return best
}

func modalBucket(counts map[model.BucketKey]int) model.BucketKey {
	keys := make([]model.BucketKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessBucket(keys[i], keys[j]) })

	var best model.BucketKey
	bestCount := -1
	for _, k := range keys {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	return best
}

var categoryRank = map[model.Category]int{
	model.CategoryLow:    0,
	model.CategoryMedium: 1,
	model.CategoryHigh:   2,
}

func lessBucket(a, b model.BucketKey) bool {
	if a.Severity != b.Severity {
		return categoryRank[a.Severity] < categoryRank[b.Severity]
	}
	if a.Causation != b.Causation {
		return categoryRank[a.Causation] < categoryRank[b.Causation]
	}
	return a.ImpactOnLife < b.ImpactOnLife
}

// Run evaluates every profiled region and returns the ranked report.
// Region work fans out across the worker pool; regions are independent, so
// results merge without shared mutable state before ranking. If the context
// deadline expires mid-run, the regions that finished are returned with
// Summary.Partial set — per-region work is idempotent and re-runnable.
//
// A store that was never built (or holds zero rows) is a hard error so
// callers can distinguish "system not ready" from "nothing to improve".
func (e *Engine) Run(ctx context.Context, profiles []model.RegionProfile) (*model.Report, error) {
	sn, err := e.store.Snapshot()
	if err != nil {
		return nil, eris.Wrap(err, "engine: statistics store unavailable")
	}

	type regionResult struct {
		rec       *model.Recommendation
		evaluated bool
	}
	results := make([]regionResult, len(profiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range profiles {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // deadline: leave the region unevaluated
			}
			results[i].rec = e.evaluateRegion(sn, &profiles[i])
			results[i].evaluated = true
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	partial := errors.Is(ctx.Err(), context.DeadlineExceeded)

	analyzed := 0
	var recs []model.Recommendation
	for _, res := range results {
		if !res.evaluated {
			continue
		}
		analyzed++
		if res.rec != nil {
			recs = append(recs, *res.rec)
		}
	}

	Rank(recs, e.cfg.TieEpsilon)

	windowStart, windowEnd := sn.Window()
	report := &model.Report{
		ID:              uuid.New().String(),
		Recommendations: recs,
		Summary:         Summarize(recs, analyzed, windowStart, windowEnd, partial),
	}

	zap.L().Info("engine: report complete",
		zap.String("report_id", report.ID),
		zap.Int("regions_analyzed", analyzed),
		zap.Int("recommendations", len(recs)),
		zap.Bool("partial", partial),
	)
	return report, nil
}

// evaluateRegion applies the decision rule to one region. It returns nil
// when the region yields no recommendation, which is an expected outcome,
// not an error.
func (e *Engine) evaluateRegion(sn *store.Snapshot, p *model.RegionProfile) *model.Recommendation {
	current, ok := sn.Resolve(p.CurrentRating, p.DominantBucket, e.cfg.MinGroupSample)
	if !ok {
		zap.L().Debug("engine: region skipped, insufficient sample at every fallback level",
			zap.String("county", p.Region.County),
			zap.String("state", p.Region.State),
			zap.String("rating", string(p.CurrentRating)),
		)
		return nil
	}

	type candidate struct {
		rating   model.VenueRating
		resolved store.Resolved
		dollar   float64
		percent  float64
	}

	var best *candidate
	for _, rating := range model.Ratings() {
		if rating == p.CurrentRating {
			continue
		}
		resolved, ok := sn.Resolve(rating, p.DominantBucket, e.cfg.MinGroupSample)
		if !ok {
			continue
		}

		dollar := current.Stats.MeanAbsError - resolved.Stats.MeanAbsError
		percent := 0.0
		if current.Stats.MeanAbsError != 0 {
			percent = dollar / current.Stats.MeanAbsError * 100
		}

		// Both thresholds must hold, and the improvement must be real.
		if dollar <= 0 || dollar < e.cfg.MinDollarImprovement || percent < e.cfg.MinPercentImprovement {
			continue
		}

		c := &candidate{rating: rating, resolved: resolved, dollar: dollar, percent: percent}
		if best == nil || betterCandidate(c.dollar, c.rating, c.resolved.Stats.SampleSize,
			best.dollar, best.rating, best.resolved.Stats.SampleSize,
			p.CurrentRating, e.cfg.TieEpsilon) {
			best = c
		}
	}

	if best == nil {
		return nil
	}

	return &model.Recommendation{
		County:                p.Region.County,
		State:                 p.Region.State,
		CurrentRating:         p.CurrentRating,
		CurrentMeanError:      current.Stats.MeanAbsError,
		CurrentSampleSize:     current.Stats.SampleSize,
		CurrentLevel:          current.Level,
		RecommendedRating:     best.rating,
		RecommendedMeanError:  best.resolved.Stats.MeanAbsError,
		RecommendedSampleSize: best.resolved.Stats.SampleSize,
		RecommendedLevel:      best.resolved.Level,
		DollarImprovement:     best.dollar,
		PercentImprovement:    best.percent,
		Confidence:            confidence(current.Stats.SampleSize, best.resolved.Stats.SampleSize, e.cfg),
	}
}

// betterCandidate reports whether candidate a beats candidate b: larger
// dollar improvement, with ties inside epsilon broken toward the rating
// ordinally closest to current, then toward the larger sample size.
func betterCandidate(aDollar float64, aRating model.VenueRating, aSample int,
	bDollar float64, bRating model.VenueRating, bSample int,
	current model.VenueRating, epsilon float64) bool {
	if math.Abs(aDollar-bDollar) > epsilon {
		return aDollar > bDollar
	}
	aDist, bDist := aRating.Distance(current), bRating.Distance(current)
	if aDist != bDist {
		return aDist < bDist
	}
	return aSample > bSample
}

// confidence derives the qualitative label from the two resolved sample
// sizes: high requires both at the high-confidence minimum, medium both at
// the group minimum.
func confidence(currentN, candidateN int, cfg config.AnalysisConfig) model.Confidence {
	if currentN >= cfg.HighConfidenceSample && candidateN >= cfg.HighConfidenceSample {
		return model.ConfidenceHigh
	}
	if currentN >= cfg.MinGroupSample && candidateN >= cfg.MinGroupSample {
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}

// RunWithTimeout wraps Run with the report deadline.
func (e *Engine) RunWithTimeout(ctx context.Context, profiles []model.RegionProfile, timeout time.Duration) (*model.Report, error) {
	if timeout <= 0 {
		return e.Run(ctx, profiles)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.Run(tctx, profiles)
}
