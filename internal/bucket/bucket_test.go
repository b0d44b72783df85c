package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritas-claims/venue-cli/internal/model"
)

func TestSeverity(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  model.Category
	}{
		{"zero", 0, model.CategoryLow},
		{"low boundary", 500, model.CategoryLow},
		{"just above low", 500.01, model.CategoryMedium},
		{"medium boundary", 1500, model.CategoryMedium},
		{"just above medium", 1500.01, model.CategoryHigh},
		{"high", 9000, model.CategoryHigh},
		{"negative", -10, model.CategoryLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Severity(tt.score))
		})
	}
}

func TestCausation(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  model.Category
	}{
		{"zero", 0, model.CategoryLow},
		{"low boundary", 100, model.CategoryLow},
		{"just above low", 100.01, model.CategoryMedium},
		{"medium boundary", 300, model.CategoryMedium},
		{"just above medium", 300.01, model.CategoryHigh},
		{"high", 1000, model.CategoryHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Causation(tt.score))
		})
	}
}

func TestKey_PassesImpactThrough(t *testing.T) {
	c := &model.ClaimRecord{
		SeverityScore:  750,
		CausationScore: 50,
		ImpactOnLife:   4,
	}
	key := Key(c)
	assert.Equal(t, model.BucketKey{
		Severity:     model.CategoryMedium,
		Causation:    model.CategoryLow,
		ImpactOnLife: 4,
	}, key)
}

func TestKey_Deterministic(t *testing.T) {
	c := &model.ClaimRecord{SeverityScore: 1500, CausationScore: 300, ImpactOnLife: 1}
	assert.Equal(t, Key(c), Key(c))
}
