package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veritas-claims/venue-cli/internal/aggregate"
	"github.com/veritas-claims/venue-cli/internal/monitoring"
	"github.com/veritas-claims/venue-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP",
	Long:  "Serves report, rebuild, and status endpoints, with optional cron-scheduled refreshes and background health checks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg.Analysis)
		if err != nil {
			return err
		}
		defer env.Close()

		// Scheduled refresh.
		if cfg.Server.RefreshCron != "" {
			c := cron.New()
			_, err := c.AddFunc(cfg.Server.RefreshCron, func() {
				if _, err := env.Aggregator.Refresh(ctx, time.Now().UTC()); err != nil {
					zap.L().Error("scheduled refresh failed", zap.Error(err))
				}
			})
			if err != nil {
				return eris.Wrapf(err, "serve: invalid refresh cron %q", cfg.Server.RefreshCron)
			}
			c.Start()
			defer c.Stop()
			zap.L().Info("scheduled refresh enabled", zap.String("cron", cfg.Server.RefreshCron))
		}

		// Background health checks.
		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}

		return nil
	},
}

// newRouter builds the HTTP surface over the environment. The rebuild
// endpoint is rate-limited so repeated triggers cannot monopolize the claim
// source.
func newRouter(env *venueEnv) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	rebuildLimiter := rate.NewLimiter(rate.Limit(cfg.Server.RebuildsPerMinute/60), 1)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			snap, err := monitoring.NewCollector(env.Store).Collect()
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "collect metrics failed")
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Get("/report", func(w http.ResponseWriter, req *http.Request) {
			report, err := env.reportFromCurrent(req.Context(), time.Now().UTC())
			if err != nil {
				if errors.Is(err, store.ErrNotBuilt) {
					writeJSONError(w, http.StatusServiceUnavailable, "statistics store not built")
					return
				}
				zap.L().Error("report request failed", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "report generation failed")
				return
			}
			writeJSON(w, http.StatusOK, report)
		})

		r.Post("/rebuild", func(w http.ResponseWriter, req *http.Request) {
			if !rebuildLimiter.Allow() {
				writeJSONError(w, http.StatusTooManyRequests, "rebuild rate limit exceeded")
				return
			}
			sn, err := env.Aggregator.Refresh(req.Context(), time.Now().UTC())
			if err != nil {
				if errors.Is(err, aggregate.ErrRefreshInProgress) {
					writeJSONError(w, http.StatusConflict, "refresh already in progress")
					return
				}
				zap.L().Error("rebuild request failed", zap.Error(err))
				writeJSONError(w, http.StatusInternalServerError, "rebuild failed")
				return
			}
			windowStart, windowEnd := sn.Window()
			writeJSON(w, http.StatusOK, map[string]any{
				"rows":         len(sn.Rows()),
				"window_start": windowStart,
				"window_end":   windowEnd,
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
