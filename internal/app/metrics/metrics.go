// Package metrics holds the Prometheus collectors for the data layer and a
// Sink adapter the query cache reports into.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drivelane",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Duration of queries and mutations against the backend.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"kind", "name", "outcome"},
	)

	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivelane",
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Total number of settled queries and mutations.",
		},
		[]string{"kind", "name", "outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivelane",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	pagesLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drivelane",
			Subsystem: "pager",
			Name:      "pages_loaded_total",
			Help:      "Pages loaded by paged lists.",
		},
		[]string{"list", "mode"},
	)
)

func init() {
	Registry.MustRegister(
		fetchDuration,
		fetchTotal,
		cacheLookups,
		pagesLoaded,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordPageLoad records a page fetched by a paged list.
func RecordPageLoad(list, mode string) {
	if list == "" {
		list = "unknown"
	}
	pagesLoaded.WithLabelValues(list, mode).Inc()
}

// PromSink adapts the registry to the query cache's measurement interface.
type PromSink struct{}

// Track routes cache measurements to the matching collector. Unknown names
// are dropped.
func (PromSink) Track(name string, value float64, labels map[string]string) {
	switch name {
	case "datalayer_fetch_duration_ms":
		kind := labels["kind"]
		qname := labels["name"]
		outcome := labels["outcome"]
		// The cache reports milliseconds; the histogram is in seconds.
		fetchDuration.WithLabelValues(kind, qname, outcome).Observe(value / 1000)
		fetchTotal.WithLabelValues(kind, qname, outcome).Inc()
	case "datalayer_cache_lookup":
		cacheLookups.WithLabelValues(labels["outcome"]).Inc()
	}
}
