package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-claims/venue-cli/internal/config"
)

var monCfg = config.MonitoringConfig{
	CheckIntervalSecs:    300,
	StaleAfterHours:      48,
	UnreliableShareAlert: 0.5,
}

func healthySnapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		StoreBuilt:      true,
		GroupRows:       100,
		UnreliableShare: 0.1,
		RatingsCovered:  5,
		SnapshotAge:     2 * time.Hour,
		CollectedAt:     time.Now().UTC(),
	}
}

func TestEvaluate_HealthySnapshotNoAlerts(t *testing.T) {
	alerts := NewAlerter(monCfg).Evaluate(healthySnapshot())
	assert.Empty(t, alerts)
}

func TestEvaluate_NotBuiltShortCircuits(t *testing.T) {
	snap := &MetricsSnapshot{StoreBuilt: false}

	alerts := NewAlerter(monCfg).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStoreNotBuilt, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
}

func TestEvaluate_StaleSnapshot(t *testing.T) {
	snap := healthySnapshot()
	snap.SnapshotAge = 72 * time.Hour

	alerts := NewAlerter(monCfg).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleStatistics, alerts[0].Type)
}

func TestEvaluate_UnreliableShare(t *testing.T) {
	snap := healthySnapshot()
	snap.UnreliableShare = 0.6

	alerts := NewAlerter(monCfg).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertUnreliableShare, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

func TestEvaluate_RatingCoverage(t *testing.T) {
	snap := healthySnapshot()
	snap.RatingsCovered = 3

	alerts := NewAlerter(monCfg).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRatingCoverage, alerts[0].Type)
}

func TestSendAlerts_PostsToWebhook(t *testing.T) {
	var received atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received.Add(1)
	}))
	defer srv.Close()

	cfg := monCfg
	cfg.WebhookURL = srv.URL

	alerts := []Alert{
		{Type: AlertStaleStatistics, Severity: "high", Message: "stale"},
		{Type: AlertUnreliableShare, Severity: "medium", Message: "unreliable"},
	}
	sent := NewAlerter(cfg).SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int64(2), received.Load())
}

func TestSendAlerts_CountsOnlySuccesses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := monCfg
	cfg.WebhookURL = srv.URL

	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{
		{Type: AlertStaleStatistics, Severity: "high", Message: "stale"},
	})
	assert.Zero(t, sent)
}

func TestSendAlerts_NoWebhookConfigured(t *testing.T) {
	sent := NewAlerter(monCfg).SendAlerts(context.Background(), []Alert{
		{Type: AlertStaleStatistics},
	})
	assert.Zero(t, sent)
}
