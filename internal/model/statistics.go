package model

import "time"

// Category is a discretized Low/Medium/High bucket derived from a continuous
// severity or causation score.
type Category string

const (
	CategoryLow    Category = "low"
	CategoryMedium Category = "medium"
	CategoryHigh   Category = "high"
)

// BucketKey is the composite categorical key a claim is grouped under,
// independent of venue rating.
type BucketKey struct {
	Severity     Category `json:"severity"`
	Causation    Category `json:"causation"`
	ImpactOnLife int      `json:"impact_on_life"`
}

// GroupKey is the full key a GroupStatistics row is stored under.
type GroupKey struct {
	Rating VenueRating `json:"venue_rating"`
	Bucket BucketKey   `json:"bucket"`
}

// GroupStatistics holds the pre-aggregated settlement statistics for one
// (venue_rating, bucket) group. Rows are owned exclusively by the aggregator
// and fully rewritten on every refresh.
//
// CoefficientOfVariation is nil when the mean actual settlement is zero.
// CI95Low/CI95High are nil when SampleSize < the normal-approximation
// minimum (30). Unreliable marks rows with SampleSize below the minimum
// group sample; such rows are retained as last-resort fallback input but are
// never used directly in a comparison.
type GroupStatistics struct {
	Key GroupKey `json:"key"`

	SampleSize int `json:"sample_size"`

	MeanActual   float64 `json:"mean_actual"`
	MedianActual float64 `json:"median_actual"`
	StdDevActual float64 `json:"stddev_actual"`

	MeanPredicted   float64 `json:"mean_predicted"`
	MedianPredicted float64 `json:"median_predicted"`

	MeanAbsError   float64 `json:"mean_abs_error"`
	MedianAbsError float64 `json:"median_abs_error"`

	CoefficientOfVariation *float64 `json:"coefficient_of_variation,omitempty"`
	CI95Low                *float64 `json:"ci95_low,omitempty"`
	CI95High               *float64 `json:"ci95_high,omitempty"`

	Unreliable bool `json:"unreliable"`

	LastUpdated time.Time `json:"last_updated"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}
