package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across the proxy.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "aiguard",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// ForwardedRequestsTotal counts requests forwarded to each upstream provider,
// labelled by outcome (success, upstream_error, network_error, timeout).
var ForwardedRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "aiguard",
		Subsystem: "forwarder",
		Name:      "requests_total",
		Help:      "Total number of requests forwarded to upstream providers.",
	},
	[]string{"provider", "outcome"},
)

// RateLimitDecisionsTotal counts allow/deny decisions by the rate limiter.
var RateLimitDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "aiguard",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Total number of rate limit decisions.",
	},
	[]string{"decision", "backend"},
)

// QuotaDenialsTotal counts quota-exhaustion denials by bucket (daily/monthly).
var QuotaDenialsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "aiguard",
		Subsystem: "quota",
		Name:      "denials_total",
		Help:      "Total number of requests denied for quota exhaustion.",
	},
	[]string{"quota_type"},
)

// UsageRecordsTotal counts usage records successfully written per provider.
var UsageRecordsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "aiguard",
		Subsystem: "usage",
		Name:      "records_total",
		Help:      "Total number of usage records written per provider.",
	},
	[]string{"provider"},
)

// All returns the proxy-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ForwardedRequestsTotal,
		RateLimitDecisionsTotal,
		QuotaDenialsTotal,
		UsageRecordsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors, the shared HTTPRequestDuration metric, and any additional
// service-specific collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
