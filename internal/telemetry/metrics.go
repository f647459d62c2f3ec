package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SourceRequests counts outbound calls per intelligence source.
	SourceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnprio",
			Name:      "source_requests_total",
			Help:      "Total requests to external intelligence sources",
		},
		[]string{"source", "outcome"},
	)

	// CacheLookups counts enrichment cache hits and misses.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnprio",
			Name:      "cache_lookups_total",
			Help:      "Enrichment cache lookups by result",
		},
		[]string{"result"},
	)

	// Enrichments counts enrichment requests by final result.
	Enrichments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnprio",
			Name:      "enrichments_total",
			Help:      "Enrichment requests by result (ok, error, invalid)",
		},
		[]string{"result"},
	)

	// FlightsShared counts callers that piggybacked on another caller's
	// in-flight fetch for the same identifier.
	FlightsShared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vulnprio",
			Name:      "singleflight_shared_total",
			Help:      "Enrichment calls served by a shared in-flight fetch",
		},
	)

	// EnrichmentDuration observes end-to-end enrichment latency.
	EnrichmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vulnprio",
			Name:      "enrichment_duration_seconds",
			Help:      "End-to-end latency of single enrichments",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RefreshCycles counts background refresh cycles by result.
	RefreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnprio",
			Name:      "refresh_cycles_total",
			Help:      "Background refresh cycles by result",
		},
		[]string{"result"},
	)

	// ScoreChanges counts above-threshold score movements seen by the
	// refresh scheduler.
	ScoreChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vulnprio",
			Name:      "score_changes_total",
			Help:      "Score changes above the notification delta",
		},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the default registry. Safe to
// call more than once; registration errors for duplicates are ignored.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(SourceRequests)
		prometheus.DefaultRegisterer.Register(CacheLookups)
		prometheus.DefaultRegisterer.Register(Enrichments)
		prometheus.DefaultRegisterer.Register(FlightsShared)
		prometheus.DefaultRegisterer.Register(EnrichmentDuration)
		prometheus.DefaultRegisterer.Register(RefreshCycles)
		prometheus.DefaultRegisterer.Register(ScoreChanges)
	})
}
