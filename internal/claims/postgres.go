package claims

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veritas-claims/venue-cli/internal/db"
	"github.com/veritas-claims/venue-cli/internal/model"
)

// PostgresSource reads claim records from a Postgres table via pgx.
type PostgresSource struct {
	pool    db.Pool
	table   string
	closeFn func()
}

// NewPostgres creates a PostgresSource with its own connection pool.
func NewPostgres(ctx context.Context, connString, table string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "claims: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "claims: ping database")
	}
	return &PostgresSource{pool: pool, table: table, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool, table string) *PostgresSource {
	return &PostgresSource{pool: pool, table: table}
}

// FetchWindow returns every claim closed inside [start, end).
func (s *PostgresSource) FetchWindow(ctx context.Context, start, end time.Time) ([]model.ClaimRecord, error) {
	query := `
SELECT
    settlement_actual,
    settlement_predicted,
    COALESCE(venue_rating, ''),
    COALESCE(severity_score, 0),
    COALESCE(causation_score, 0),
    COALESCE(impact_on_life, 0),
    COALESCE(county, ''),
    COALESCE(state, ''),
    close_date
FROM ` + sanitizeTable(s.table) + `
WHERE close_date >= $1 AND close_date < $2`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "claims: query window")
	}
	defer rows.Close()

	return scanClaimRows(rows)
}

// Close releases the underlying pool.
func (s *PostgresSource) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// scanClaimRows scans pgx rows into claim records. Rows carrying a rating
// outside the known domain cannot be keyed and are dropped with a counter.
func scanClaimRows(rows pgx.Rows) ([]model.ClaimRecord, error) {
	var records []model.ClaimRecord
	var badRating int
	for rows.Next() {
		var r model.ClaimRecord
		var rating string
		err := rows.Scan(
			&r.SettlementActual,
			&r.SettlementPredicted,
			&rating,
			&r.SeverityScore,
			&r.CausationScore,
			&r.ImpactOnLife,
			&r.County,
			&r.State,
			&r.CloseDate,
		)
		if err != nil {
			return nil, eris.Wrap(err, "claims: scan row")
		}
		vr, err := model.ParseVenueRating(rating)
		if err != nil {
			badRating++
			continue
		}
		r.VenueRating = vr
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "claims: iterate rows")
	}
	if badRating > 0 {
		zap.L().Warn("claims: dropped records with unknown venue rating",
			zap.Int("dropped", badRating),
		)
	}
	return records, nil
}

// sanitizeTable handles schema-qualified table names like
// "claims.settlement_records".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}
