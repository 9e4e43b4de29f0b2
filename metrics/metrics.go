package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afdata_api_requests_total",
			Help: "Total number of AutoFocus API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afdata_api_request_duration_seconds",
			Help:    "Time taken by AutoFocus API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	Polls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afdata_polls_total",
			Help: "Total number of result polls by observed search state",
		},
		[]string{"state"},
	)

	PollRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "afdata_poll_retries_total",
			Help: "Total number of polls re-issued after a transport failure",
		},
	)

	SearchStalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "afdata_search_stalls_total",
			Help: "Total number of searches ended early because hit counts stopped growing",
		},
	)

	HitsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afdata_hits_processed_total",
			Help: "Total number of new hits handed to enrichment",
		},
		[]string{"kind"},
	)

	QuotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "afdata_quota_points_remaining",
			Help: "Provider quota points remaining as last reported",
		},
		[]string{"bucket"},
	)

	CoverageLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afdata_coverage_lookups_total",
			Help: "Total number of signature coverage lookups by outcome",
		},
		[]string{"outcome"},
	)

	GeocodeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afdata_geocode_lookups_total",
			Help: "Total number of country geocode lookups by source",
		},
		[]string{"source"},
	)
)

// RecordQuota publishes a provider quota snapshot
func RecordQuota(minute, daily int) {
	QuotaRemaining.WithLabelValues("minute").Set(float64(minute))
	QuotaRemaining.WithLabelValues("daily").Set(float64(daily))
}
