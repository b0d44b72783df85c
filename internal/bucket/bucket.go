// Package bucket converts continuous severity and causation scores into the
// discrete categories the statistics store is keyed by. The same mapping is
// used at aggregation time and query time so stored and queried keys can
// never skew apart.
package bucket

import "github.com/veritas-claims/venue-cli/internal/model"

// Severity score boundaries (inclusive upper bounds).
const (
	severityLowMax    = 500.0
	severityMediumMax = 1500.0
)

// Causation score boundaries (inclusive upper bounds).
const (
	causationLowMax    = 100.0
	causationMediumMax = 300.0
)

// Severity maps a continuous severity score to its category.
func Severity(score float64) model.Category {
	switch {
	case score <= severityLowMax:
		return model.CategoryLow
	case score <= severityMediumMax:
		return model.CategoryMedium
	default:
		return model.CategoryHigh
	}
}

// Causation maps a continuous causation score to its category.
func Causation(score float64) model.Category {
	switch {
	case score <= causationLowMax:
		return model.CategoryLow
	case score <= causationMediumMax:
		return model.CategoryMedium
	default:
		return model.CategoryHigh
	}
}

// Key derives the composite bucket key for a claim. ImpactOnLife passes
// through unchanged.
func Key(c *model.ClaimRecord) model.BucketKey {
	return model.BucketKey{
		Severity:     Severity(c.SeverityScore),
		Causation:    Causation(c.CausationScore),
		ImpactOnLife: c.ImpactOnLife,
	}
}
