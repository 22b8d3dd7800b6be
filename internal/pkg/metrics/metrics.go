// Package metrics provides Prometheus metrics for the rule engine backend (RED + decision
// outcomes). Enterprise-grade: scrapeable /metrics; runbooks and dashboards can rely on
// these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kubilitics"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts engine decisions by policy outcome and matched block
	// (§4.4: allow/forbidden_matched/forbidden_mismatched/not_found).
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ror_decisions_total",
			Help:      "Total number of access-control decisions by outcome and matched block.",
		},
		[]string{"outcome", "block"},
	)

	// RuleRejectionsTotal counts individual rule rejections by cause (§7: "a Rejected
	// outcome always carries a named cause"), independent of the decision each rejection
	// ultimately contributed to.
	RuleRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ror_rule_rejections_total",
			Help:      "Total number of rule rejections by cause.",
		},
		[]string{"cause"},
	)

	// ExternalLookupDurationSeconds is the metadata lookup facade's external-fetch
	// latency, recorded only on a genuine cache miss (§4.1 cases 3/4, C9).
	ExternalLookupDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ror_external_lookup_duration_seconds",
			Help:      "Cluster metadata lookup duration in seconds, recorded on cache miss.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5.1s
		},
	)
)
