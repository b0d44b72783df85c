// Package claims provides read-only access to the ingestion collaborator's
// claim-record collection. Records arrive unvalidated beyond the null/zero
// guards applied downstream.
package claims

import (
	"context"
	"sort"
	"time"

	"github.com/veritas-claims/venue-cli/internal/model"
)

// Source is a queryable collection of closed claim records.
type Source interface {
	// FetchWindow returns every claim whose close date falls inside
	// [start, end). Order is not guaranteed.
	FetchWindow(ctx context.Context, start, end time.Time) ([]model.ClaimRecord, error)
	Close() error
}

// MemorySource is a slice-backed Source for tests and fixtures.
type MemorySource struct {
	Records []model.ClaimRecord
}

// NewMemorySource creates a MemorySource over the given records.
func NewMemorySource(records []model.ClaimRecord) *MemorySource {
	return &MemorySource{Records: records}
}

// FetchWindow returns the in-window records sorted by close date for
// reproducible test ordering.
func (m *MemorySource) FetchWindow(_ context.Context, start, end time.Time) ([]model.ClaimRecord, error) {
	var out []model.ClaimRecord
	for _, r := range m.Records {
		if !r.CloseDate.Before(start) && r.CloseDate.Before(end) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CloseDate.Before(out[j].CloseDate) })
	return out, nil
}

// Close is a no-op.
func (m *MemorySource) Close() error { return nil }
