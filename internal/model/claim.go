package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// VenueRating is the ordered categorical label describing a jurisdiction's
// historical tendency toward claimant-favorable settlements. Ordinal values
// run from most conservative (0) to most liberal (4).
type VenueRating string

const (
	RatingConservative           VenueRating = "conservative"
	RatingModeratelyConservative VenueRating = "moderately_conservative"
	RatingModerate               VenueRating = "moderate"
	RatingModeratelyLiberal      VenueRating = "moderately_liberal"
	RatingLiberal                VenueRating = "liberal"
)

// ratingOrdinals maps each rating to its position in the ordered domain.
var ratingOrdinals = map[VenueRating]int{
	RatingConservative:           0,
	RatingModeratelyConservative: 1,
	RatingModerate:               2,
	RatingModeratelyLiberal:      3,
	RatingLiberal:                4,
}

// Ratings returns the full ordered venue rating domain.
func Ratings() []VenueRating {
	return []VenueRating{
		RatingConservative,
		RatingModeratelyConservative,
		RatingModerate,
		RatingModeratelyLiberal,
		RatingLiberal,
	}
}

// Ordinal returns the rating's position in the ordered domain, or -1 for an
// unrecognized rating.
func (r VenueRating) Ordinal() int {
	if o, ok := ratingOrdinals[r]; ok {
		return o
	}
	return -1
}

// Valid reports whether the rating belongs to the known domain.
func (r VenueRating) Valid() bool {
	_, ok := ratingOrdinals[r]
	return ok
}

// Distance returns the absolute ordinal distance between two ratings.
func (r VenueRating) Distance(other VenueRating) int {
	d := r.Ordinal() - other.Ordinal()
	if d < 0 {
		return -d
	}
	return d
}

// ParseVenueRating converts a stored rating string into a VenueRating.
func ParseVenueRating(s string) (VenueRating, error) {
	r := VenueRating(s)
	if !r.Valid() {
		return "", eris.Errorf("model: unknown venue rating %q", s)
	}
	return r, nil
}

// ClaimRecord is a single closed claim as provided by the ingestion
// collaborator. Settlement amounts are nullable: records missing either side
// of the actual/predicted pair are excluded from error metrics upstream.
type ClaimRecord struct {
	SettlementActual    *float64    `json:"settlement_actual"`
	SettlementPredicted *float64    `json:"settlement_predicted"`
	VenueRating         VenueRating `json:"venue_rating"`
	SeverityScore       float64     `json:"severity_score"`
	CausationScore      float64     `json:"causation_score"`
	ImpactOnLife        int         `json:"impact_on_life"`
	County              string      `json:"county"`
	State               string      `json:"state"`
	CloseDate           time.Time   `json:"close_date"`
}

// HasSettlements reports whether both settlement values are present, which is
// required for the record to contribute to any error metric.
func (c *ClaimRecord) HasSettlements() bool {
	return c.SettlementActual != nil && c.SettlementPredicted != nil
}

// RegionKey identifies a geographic unit.
type RegionKey struct {
	County string `json:"county"`
	State  string `json:"state"`
}

// Region returns the record's region key.
func (c *ClaimRecord) Region() RegionKey {
	return RegionKey{County: c.County, State: c.State}
}
