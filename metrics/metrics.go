// Package metrics exposes Prometheus counters and histograms describing
// orchestrated runs. Metrics are registered with the default registry so
// embedding applications can serve them from their existing /metrics handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flotilla",
		Name:      "runs_total",
		Help:      "Total number of runs, labelled by outcome.",
	}, []string{"outcome"})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flotilla",
		Name:      "tests_total",
		Help:      "Total number of executed tests by browser and status.",
	}, []string{"browser", "status"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flotilla",
		Name:      "retries_total",
		Help:      "Total number of test retries by browser.",
	}, []string{"browser"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flotilla",
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of a complete run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// RecordRun records the outcome and duration of a completed run.
func RecordRun(outcome string, duration time.Duration) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.Observe(duration.Seconds())
}

// RecordTest records a single test completion.
func RecordTest(browser, status string) {
	testsTotal.WithLabelValues(browser, status).Inc()
}

// RecordRetry records a retry attempt for the given browser.
func RecordRetry(browser string) {
	retriesTotal.WithLabelValues(browser).Inc()
}
