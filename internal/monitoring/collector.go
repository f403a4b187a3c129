package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteresolve/internal/model"
	"github.com/sells-group/siteresolve/internal/store"
)

// MetricsSnapshot holds a point-in-time view of batch run health.
type MetricsSnapshot struct {
	// Runs within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// Row outcomes summed over completed runs.
	Rows          int     `json:"rows"`
	Resolved      int     `json:"resolved"`
	ByName        int     `json:"by_name"`
	ByBrand       int     `json:"by_brand"`
	KnownBrand    int     `json:"known_brand"`
	MalformedURLs int     `json:"malformed_urls"`
	Unreadable    int     `json:"unreadable_rows"`
	MatchRate     float64 `json:"match_rate"`
	AvgDurationMs int64   `json:"avg_duration_ms"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run statistics from the store.
type Collector struct {
	store RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalDuration int64
	var timedRuns int64
	for _, r := range runs {
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		if r.Status != model.RunStatusComplete || r.Stats == nil {
			continue
		}
		s := r.Stats
		snap.Rows += s.Rows
		snap.Resolved += s.Resolved
		snap.ByName += s.ByName
		snap.ByBrand += s.ByBrand
		snap.KnownBrand += s.KnownBrand
		snap.MalformedURLs += s.Malformed
		snap.Unreadable += s.Unreadable
		totalDuration += s.DurationMs
		timedRuns++
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Rows > 0 {
		snap.MatchRate = float64(snap.Resolved) / float64(snap.Rows)
	}
	if timedRuns > 0 {
		snap.AvgDurationMs = totalDuration / timedRuns
	}

	return snap, nil
}
