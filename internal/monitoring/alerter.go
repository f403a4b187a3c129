package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteresolve/internal/config"
	"github.com/sells-group/siteresolve/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertLowMatchRate   AlertType = "low_match_rate"
)

// minFinishedRuns and minRows keep a handful of runs from tripping alerts.
const (
	minFinishedRuns = 5
	minRows         = 100
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns run health snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     10 * time.Second,
			OnRetry:        resilience.LogRetries("monitoring: deliver alerts"),
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Filter run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// A collapsing match rate usually means the scraper output changed shape.
	if a.cfg.MinMatchRate > 0 && snap.Rows >= minRows && snap.MatchRate < a.cfg.MinMatchRate {
		alerts = append(alerts, Alert{
			Type:     AlertLowMatchRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Website match rate %.1f%% is below %.1f%% (%d of %d rows in last %dh)",
				snap.MatchRate*100, a.cfg.MinMatchRate*100,
				snap.Resolved, snap.Rows, snap.LookbackHours,
			),
			Details: map[string]any{
				"match_rate":      snap.MatchRate,
				"threshold":       a.cfg.MinMatchRate,
				"rows":            snap.Rows,
				"malformed_urls":  snap.MalformedURLs,
				"unreadable_rows": snap.Unreadable,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// webhookPayload is posted once per check. Text gives chat webhooks a
// readable summary; Alerts carries the structured form.
type webhookPayload struct {
	Service string  `json:"service"`
	Text    string  `json:"text"`
	Alerts  []Alert `json:"alerts"`
}

// SendAlerts posts all alerts to the webhook in a single request, retrying
// transient failures. It returns the number of alerts delivered, which is
// either all of them or none.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	lines := make([]string, len(alerts))
	for i, alert := range alerts {
		lines[i] = fmt.Sprintf("[%s] %s", alert.Severity, alert.Message)
	}
	body, err := json.Marshal(webhookPayload{
		Service: namespace,
		Text:    strings.Join(lines, "\n"),
		Alerts:  alerts,
	})
	if err != nil {
		zap.L().Error("monitoring: marshal alerts", zap.Error(err))
		return 0
	}

	if err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.post(ctx, body)
	}); err != nil {
		zap.L().Error("monitoring: deliver alerts", zap.Int("alerts", len(alerts)), zap.Error(err))
		return 0
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
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
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
