package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veritas-claims/venue-cli/internal/config"
	"github.com/veritas-claims/venue-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStoreNotBuilt   AlertType = "store_not_built"
	AlertStaleStatistics AlertType = "stale_statistics"
	AlertUnreliableShare AlertType = "unreliable_share"
	AlertRatingCoverage  AlertType = "rating_coverage"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if !snap.StoreBuilt {
		alerts = append(alerts, Alert{
			Type:      AlertStoreNotBuilt,
			Severity:  "high",
			Message:   "Statistics store has no built snapshot; recommendation requests will fail",
			Timestamp: now,
		})
		return alerts
	}

	if a.cfg.StaleAfterHours > 0 {
		staleAfter := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if snap.SnapshotAge > staleAfter {
			alerts = append(alerts, Alert{
				Type:     AlertStaleStatistics,
				Severity: "high",
				Message: fmt.Sprintf(
					"Statistics snapshot is %.1fh old, past the %dh staleness limit",
					snap.SnapshotAge.Hours(), a.cfg.StaleAfterHours,
				),
				Details: map[string]any{
					"snapshot_age_hours": snap.SnapshotAge.Hours(),
					"stale_after_hours":  a.cfg.StaleAfterHours,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.UnreliableShareAlert > 0 && snap.UnreliableShare > a.cfg.UnreliableShareAlert {
		alerts = append(alerts, Alert{
			Type:     AlertUnreliableShare,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.0f%% of statistic groups are below the minimum sample (threshold %.0f%%)",
				snap.UnreliableShare*100, a.cfg.UnreliableShareAlert*100,
			),
			Details: map[string]any{
				"unreliable_share": snap.UnreliableShare,
				"threshold":        a.cfg.UnreliableShareAlert,
				"group_rows":       snap.GroupRows,
			},
			Timestamp: now,
		})
	}

	if full := len(model.Ratings()); snap.RatingsCovered < full {
		alerts = append(alerts, Alert{
			Type:     AlertRatingCoverage,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Only %d of %d venue ratings have statistics; some candidates cannot be compared",
				snap.RatingsCovered, full,
			),
			Details: map[string]any{
				"ratings_covered": snap.RatingsCovered,
				"ratings_total":   full,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
