package model

import "time"

// Confidence is the qualitative label derived from the sample sizes backing
// the two groups compared in a recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// FallbackLevel records how specific the lookup was that resolved a group.
type FallbackLevel int

const (
	// FallbackExact is a point lookup on (rating, severity, causation, IOL).
	FallbackExact FallbackLevel = iota
	// FallbackNoImpact drops impact_on_life and weight-combines exact rows.
	FallbackNoImpact
	// FallbackRatingOnly combines every row stored under the rating.
	FallbackRatingOnly
)

// String returns a short operator-facing name for the level.
func (l FallbackLevel) String() string {
	switch l {
	case FallbackExact:
		return "exact"
	case FallbackNoImpact:
		return "no_impact"
	case FallbackRatingOnly:
		return "rating_only"
	default:
		return "unknown"
	}
}

// RegionProfile is the representative claim profile for a region within the
// analysis window: the most frequent venue rating and the most frequent
// bucket tuple. It exists only for the lifetime of a single report run.
type RegionProfile struct {
	Region         RegionKey   `json:"region"`
	CurrentRating  VenueRating `json:"current_rating"`
	DominantBucket BucketKey   `json:"dominant_bucket"`
	ClaimCount     int         `json:"claim_count"`
}

// Recommendation proposes changing one region's venue rating. At most one is
// emitted per region per report run.
type Recommendation struct {
	County string `json:"county"`
	State  string `json:"state"`

	CurrentRating     VenueRating   `json:"current_venue_rating"`
	CurrentMeanError  float64       `json:"current_mean_error"`
	CurrentSampleSize int           `json:"current_sample_size"`
	CurrentLevel      FallbackLevel `json:"current_fallback_level"`

	RecommendedRating     VenueRating   `json:"recommended_venue_rating"`
	RecommendedMeanError  float64       `json:"recommended_mean_error"`
	RecommendedSampleSize int           `json:"recommended_sample_size"`
	RecommendedLevel      FallbackLevel `json:"recommended_fallback_level"`

	DollarImprovement  float64    `json:"dollar_improvement"`
	PercentImprovement float64    `json:"percent_improvement"`
	Confidence         Confidence `json:"confidence"`
}

// Summary holds report-level aggregates over the emitted recommendations.
type Summary struct {
	RegionsAnalyzed       int       `json:"regions_analyzed"`
	RegionsRecommended    int       `json:"regions_recommended"`
	AvgDollarImprovement  float64   `json:"avg_dollar_improvement"`
	WindowStart           time.Time `json:"window_start"`
	WindowEnd             time.Time `json:"window_end"`
	Partial               bool      `json:"partial"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// Report is the full output of one recommendation run: the ranked
// recommendation list plus its summary.
type Report struct {
	ID              string           `json:"id"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         Summary          `json:"summary"`
}
