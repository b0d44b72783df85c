package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veritas-claims/venue-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted statistics store status",
	Long:  "Loads the persisted statistics table and reports row count, window, and last rebuild time. Requires the postgres claims driver.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Claims.Driver != "postgres" {
			return eris.New("cmd: status requires the postgres claims driver")
		}
		if cfg.Claims.DatabaseURL == "" {
			return eris.New("cmd: claims.database_url is required")
		}

		pool, err := pgxpool.New(ctx, cfg.Claims.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "cmd: open pool")
		}
		defer pool.Close()

		sn, err := store.LoadPersisted(ctx, pool)
		if err != nil {
			if errors.Is(err, store.ErrNotBuilt) {
				fmt.Fprintln(cmd.OutOrStdout(), "No persisted statistics found; run rebuild --persist first")
				return nil
			}
			return err
		}

		st := store.New()
		st.Swap(sn)
		formatStatus(cmd.OutOrStdout(), st.Status())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes a store status block to w.
func formatStatus(out io.Writer, s store.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Built:\t%v\n", s.Built)
	_, _ = fmt.Fprintf(w, "Statistic groups:\t%d\n", s.Rows)
	if s.Built {
		_, _ = fmt.Fprintf(w, "Last rebuilt:\t%s\n", s.LastUpdated.Format(time.RFC3339))
		_, _ = fmt.Fprintf(w, "Window:\t%s to %s\n",
			s.WindowStart.Format("2006-01-02"), s.WindowEnd.Format("2006-01-02"))
	}
	_ = w.Flush()
}
