package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/siteresolve/internal/model"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

const namespace = "siteresolve"

// Metrics holds the Prometheus collectors for resolutions and runs. A nil
// *Metrics records nothing.
type Metrics struct {
	resolutions    *prometheus.CounterVec
	knownBrand     prometheus.Counter
	malformedURLs  prometheus.Counter
	unreadableRows prometheus.Counter
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	brandEntries   prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Facilities resolved, by the test that chose the website (name, brand or none).",
		}, []string{"outcome"}),
		knownBrand: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "known_brand_facilities_total",
			Help:      "Facilities flagged as a known brand.",
		}),
		malformedURLs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_candidate_urls_total",
			Help:      "Candidate URLs skipped because they were not absolute URLs.",
		}),
		unreadableRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unreadable_rows_total",
			Help:      "Facility rows whose candidate list could not be parsed.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Batch filter runs, by final status.",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of batch filter runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}),
		brandEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "brand_registry_entries",
			Help:      "Entries in the loaded brand registry.",
		}),
	}
}

// ObserveResult records one facility resolution.
func (m *Metrics) ObserveResult(r sitematch.Result) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(Outcome(r)).Inc()
	if r.IsKnownBrand {
		m.knownBrand.Inc()
	}
	if r.Malformed > 0 {
		m.malformedURLs.Add(float64(r.Malformed))
	}
}

// ObserveUnreadableRow records a row whose candidate list failed to parse.
func (m *Metrics) ObserveUnreadableRow() {
	if m == nil {
		return
	}
	m.unreadableRows.Inc()
}

// ObserveRun records a finished batch run.
func (m *Metrics) ObserveRun(status model.RunStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.runDuration.Observe(d.Seconds())
}

// SetBrandEntries records the size of the loaded registry.
func (m *Metrics) SetBrandEntries(n int) {
	if m == nil {
		return
	}
	m.brandEntries.Set(float64(n))
}

// Outcome labels a result: "name", "brand" or "none".
func Outcome(r sitematch.Result) string {
	if r.Via == sitematch.ViaNone {
		return "none"
	}
	return string(r.Via)
}
