package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veritas-claims/venue-cli/internal/db"
	"github.com/veritas-claims/venue-cli/internal/model"
)

// statsColumns is the column order for claims.venue_group_stats.
var statsColumns = []string{
	"venue_rating",
	"severity_category",
	"causation_category",
	"impact_on_life",
	"sample_size",
	"mean_actual",
	"median_actual",
	"stddev_actual",
	"mean_predicted",
	"median_predicted",
	"mean_abs_error",
	"median_abs_error",
	"coefficient_of_variation",
	"ci95_low",
	"ci95_high",
	"unreliable",
	"last_updated",
	"window_start",
	"window_end",
}

// migration creates the statistics table with the composite index required
// for point lookups.
const migration = `
CREATE SCHEMA IF NOT EXISTS claims;

CREATE TABLE IF NOT EXISTS claims.venue_group_stats (
	venue_rating             TEXT             NOT NULL,
	severity_category        TEXT             NOT NULL,
	causation_category       TEXT             NOT NULL,
	impact_on_life           INTEGER          NOT NULL,
	sample_size              INTEGER          NOT NULL,
	mean_actual              DOUBLE PRECISION NOT NULL,
	median_actual            DOUBLE PRECISION NOT NULL,
	stddev_actual            DOUBLE PRECISION NOT NULL,
	mean_predicted           DOUBLE PRECISION NOT NULL,
	median_predicted         DOUBLE PRECISION NOT NULL,
	mean_abs_error           DOUBLE PRECISION NOT NULL,
	median_abs_error         DOUBLE PRECISION NOT NULL,
	coefficient_of_variation DOUBLE PRECISION,
	ci95_low                 DOUBLE PRECISION,
	ci95_high                DOUBLE PRECISION,
	unreliable               BOOLEAN          NOT NULL DEFAULT false,
	last_updated             TIMESTAMPTZ      NOT NULL,
	window_start             TIMESTAMPTZ      NOT NULL,
	window_end               TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (venue_rating, severity_category, causation_category, impact_on_life)
);
`

// Migrate ensures the statistics table exists.
func Migrate(ctx context.Context, pool db.Pool) error {
	if _, err := pool.Exec(ctx, migration); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

// Persist rewrites claims.venue_group_stats from the snapshot inside a
// single committing transaction, so concurrent table readers see either the
// prior row set or the new one, never a mix.
func Persist(ctx context.Context, pool db.Pool, sn *Snapshot) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM claims.venue_group_stats`); err != nil {
		return eris.Wrap(err, "store: clear prior rows")
	}

	rows := make([][]any, 0, len(sn.rows))
	for _, r := range sn.rows {
		rows = append(rows, []any{
			string(r.Key.Rating),
			string(r.Key.Bucket.Severity),
			string(r.Key.Bucket.Causation),
			r.Key.Bucket.ImpactOnLife,
			r.SampleSize,
			r.MeanActual,
			r.MedianActual,
			r.StdDevActual,
			r.MeanPredicted,
			r.MedianPredicted,
			r.MeanAbsError,
			r.MedianAbsError,
			r.CoefficientOfVariation,
			r.CI95Low,
			r.CI95High,
			r.Unreliable,
			r.LastUpdated,
			r.WindowStart,
			r.WindowEnd,
		})
	}

	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"claims", "venue_group_stats"}, statsColumns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "store: COPY snapshot rows")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: commit snapshot")
	}

	zap.L().Info("store: persisted statistics snapshot",
		zap.Int("rows", len(rows)),
		zap.Time("built_at", sn.builtAt),
	)
	return nil
}

// LoadPersisted reads the persisted statistics table back into a Snapshot.
// Used at startup to serve reports before the first in-process rebuild.
func LoadPersisted(ctx context.Context, pool db.Pool) (*Snapshot, error) {
	query := `
SELECT
    venue_rating, severity_category, causation_category, impact_on_life,
    sample_size,
    mean_actual, median_actual, stddev_actual,
    mean_predicted, median_predicted,
    mean_abs_error, median_abs_error,
    coefficient_of_variation, ci95_low, ci95_high,
    unreliable, last_updated, window_start, window_end
FROM claims.venue_group_stats`

	pgxRows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "store: query persisted rows")
	}
	defer pgxRows.Close()

	var rows []model.GroupStatistics
	for pgxRows.Next() {
		var r model.GroupStatistics
		var rating, severity, causation string
		err := pgxRows.Scan(
			&rating, &severity, &causation, &r.Key.Bucket.ImpactOnLife,
			&r.SampleSize,
			&r.MeanActual, &r.MedianActual, &r.StdDevActual,
			&r.MeanPredicted, &r.MedianPredicted,
			&r.MeanAbsError, &r.MedianAbsError,
			&r.CoefficientOfVariation, &r.CI95Low, &r.CI95High,
			&r.Unreliable, &r.LastUpdated, &r.WindowStart, &r.WindowEnd,
		)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan persisted row")
		}
		r.Key.Rating = model.VenueRating(rating)
		r.Key.Bucket.Severity = model.Category(severity)
		r.Key.Bucket.Causation = model.Category(causation)
		rows = append(rows, r)
	}
	if err := pgxRows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate persisted rows")
	}
	if len(rows) == 0 {
		return nil, ErrNotBuilt
	}

	first := rows[0]
	return NewSnapshot(rows, first.WindowStart, first.WindowEnd, first.LastUpdated), nil
}
