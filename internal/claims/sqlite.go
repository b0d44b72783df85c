package claims

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/veritas-claims/venue-cli/internal/model"
)

// SQLiteSource reads claim records from a SQLite database, the lightweight
// backend for local analysis over exported claim extracts.
type SQLiteSource struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given DSN.
func NewSQLite(dsn, table string) (*SQLiteSource, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "claims: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "claims: sqlite exec %s", pragma)
		}
	}
	return &SQLiteSource{db: sqlDB, table: table}, nil
}

// FetchWindow returns every claim closed inside [start, end).
func (s *SQLiteSource) FetchWindow(ctx context.Context, start, end time.Time) ([]model.ClaimRecord, error) {
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
FROM ` + quoteIdent(s.table) + `
WHERE close_date >= ? AND close_date < ?`

	rows, err := s.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "claims: sqlite query window")
	}
	defer rows.Close()

	var records []model.ClaimRecord
	var badRating int
	for rows.Next() {
		var r model.ClaimRecord
		var actual, predicted sql.NullFloat64
		var rating string
		err := rows.Scan(
			&actual,
			&predicted,
			&rating,
			&r.SeverityScore,
			&r.CausationScore,
			&r.ImpactOnLife,
			&r.County,
			&r.State,
			&r.CloseDate,
		)
		if err != nil {
			return nil, eris.Wrap(err, "claims: sqlite scan row")
		}
		if actual.Valid {
			v := actual.Float64
			r.SettlementActual = &v
		}
		if predicted.Valid {
			v := predicted.Float64
			r.SettlementPredicted = &v
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
		return nil, eris.Wrap(err, "claims: sqlite iterate rows")
	}
	if badRating > 0 {
		zap.L().Warn("claims: dropped records with unknown venue rating",
			zap.Int("dropped", badRating),
		)
	}
	return records, nil
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// quoteIdent double-quotes a possibly schema-qualified identifier for SQLite.
func quoteIdent(name string) string {
	out := `"`
	for _, c := range name {
		if c == '"' {
			out += `""`
			continue
		}
		out += string(c)
	}
	return out + `"`
}
