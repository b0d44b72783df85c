package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veritas-claims/venue-cli/internal/aggregate"
	"github.com/veritas-claims/venue-cli/internal/claims"
	"github.com/veritas-claims/venue-cli/internal/config"
	"github.com/veritas-claims/venue-cli/internal/engine"
	"github.com/veritas-claims/venue-cli/internal/model"
	"github.com/veritas-claims/venue-cli/internal/store"
)

// venueEnv holds the claim source, statistics store, aggregator, and engine
// shared by the rebuild/report/status/serve commands.
type venueEnv struct {
	Source     claims.Source
	Store      *store.Store
	Aggregator *aggregate.Aggregator
	Engine     *engine.Engine
}

// Close releases resources held by the environment.
func (e *venueEnv) Close() {
	if e.Source != nil {
		_ = e.Source.Close()
	}
}

// initEnv opens the configured claim source and wires the store, aggregator,
// and engine around it. Callers should defer env.Close().
func initEnv(ctx context.Context, analysis config.AnalysisConfig) (*venueEnv, error) {
	if err := config.ValidateAnalysis(analysis); err != nil {
		return nil, err
	}

	source, err := initSource(ctx)
	if err != nil {
		return nil, err
	}

	st := store.New()
	return &venueEnv{
		Source:     source,
		Store:      st,
		Aggregator: aggregate.New(source, st, analysis),
		Engine:     engine.New(st, analysis, cfg.Report.Workers),
	}, nil
}

// initSource opens the claim source named by claims.driver.
func initSource(ctx context.Context) (claims.Source, error) {
	switch cfg.Claims.Driver {
	case "postgres":
		if cfg.Claims.DatabaseURL == "" {
			return nil, eris.New("cmd: claims.database_url is required for the postgres driver")
		}
		src, err := claims.NewPostgres(ctx, cfg.Claims.DatabaseURL, cfg.Claims.Table)
		if err != nil {
			return nil, err
		}
		zap.L().Info("claim source opened",
			zap.String("driver", "postgres"),
			zap.String("table", cfg.Claims.Table),
		)
		return src, nil
	case "sqlite":
		if cfg.Claims.DatabaseURL == "" {
			return nil, eris.New("cmd: claims.database_url is required for the sqlite driver")
		}
		src, err := claims.NewSQLite(cfg.Claims.DatabaseURL, cfg.Claims.Table)
		if err != nil {
			return nil, err
		}
		zap.L().Info("claim source opened",
			zap.String("driver", "sqlite"),
			zap.String("table", cfg.Claims.Table),
		)
		return src, nil
	default:
		return nil, eris.Errorf("cmd: unknown claims driver %q", cfg.Claims.Driver)
	}
}

// buildReport refreshes the statistics store and evaluates every region seen
// in the window. One fetch feeds both the aggregation and the region
// profiles.
func (e *venueEnv) buildReport(ctx context.Context, now time.Time) (*model.Report, error) {
	records, _, err := e.Aggregator.RefreshRecords(ctx, now)
	if err != nil {
		return nil, err
	}

	profiles := engine.Profiles(records)
	timeout := time.Duration(cfg.Report.TimeoutSecs) * time.Second
	return e.Engine.RunWithTimeout(ctx, profiles, timeout)
}

// reportFromCurrent evaluates regions against the store's current snapshot
// without triggering a rebuild, building the store only if it has never been
// built. Used by the serve command so report requests do not contend with
// scheduled refreshes.
func (e *venueEnv) reportFromCurrent(ctx context.Context, now time.Time) (*model.Report, error) {
	if err := e.Aggregator.EnsureBuilt(ctx, now); err != nil {
		return nil, err
	}

	sn, err := e.Store.Snapshot()
	if err != nil {
		return nil, err
	}
	windowStart, windowEnd := sn.Window()

	records, err := e.Source.FetchWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, eris.Wrap(err, "cmd: fetch window for report")
	}

	profiles := engine.Profiles(records)
	timeout := time.Duration(cfg.Report.TimeoutSecs) * time.Second
	return e.Engine.RunWithTimeout(ctx, profiles, timeout)
}
