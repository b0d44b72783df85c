package main

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veritas-claims/venue-cli/internal/store"
)

var rebuildPersist bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the statistics store from the analysis window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg.Analysis)
		if err != nil {
			return err
		}
		defer env.Close()

		sn, err := env.Aggregator.Refresh(ctx, time.Now().UTC())
		if err != nil {
			return err
		}

		status := env.Store.Status()
		windowStart, windowEnd := sn.Window()
		fmt.Printf("Rebuilt %d statistic groups from window %s to %s\n",
			status.Rows,
			windowStart.Format("2006-01-02"),
			windowEnd.Format("2006-01-02"),
		)

		if rebuildPersist {
			if cfg.Claims.Driver != "postgres" {
				return eris.New("cmd: --persist requires the postgres claims driver")
			}
			pool, err := pgxpool.New(ctx, cfg.Claims.DatabaseURL)
			if err != nil {
				return eris.Wrap(err, "cmd: open pool for persist")
			}
			defer pool.Close()

			if err := store.Migrate(ctx, pool); err != nil {
				return err
			}
			if err := store.Persist(ctx, pool, sn); err != nil {
				return err
			}
			fmt.Printf("Persisted %d rows to claims.venue_group_stats\n", status.Rows)
		}

		zap.L().Info("rebuild complete", zap.Int("rows", status.Rows))
		return nil
	},
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildPersist, "persist", false, "persist the rebuilt statistics to the database")
	rootCmd.AddCommand(rebuildCmd)
}
