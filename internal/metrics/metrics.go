// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"github.com/DanielPopoola/x402-gateway/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "x402"

var (
	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenges_issued_total",
		Help:      "The total number of 402 challenges minted",
	})
	PriceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_fallbacks_total",
		Help:      "Challenges quoted with the configured fallback price because the ledger price read failed",
	})
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Payment verification attempts by outcome",
	}, []string{"outcome"})
	LedgerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_call_duration_seconds",
		Help:      "Latency of ledger RPC calls in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "result"})
	ResourcesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resources_issued_total",
		Help:      "Protected resources delivered, split into first deliveries and redeliveries",
	}, []string{"delivery"})
	RequestsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "requests",
		Help:      "Request records currently held by the registry, by status",
	}, []string{"status"})
	SweptRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_requests_total",
		Help:      "Request records expired or evicted by the background sweep",
	}, []string{"action"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_duration_seconds",
		Help:      "Latency of requests in second.",
	}, []string{"method", "route", "status"})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Challenge requests rejected by the per-client rate limiter",
	})
	PanicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_panics_total",
		Help:      "Handler panics turned into error responses or logged after the response started",
	})
)

// SetRequestCounts publishes the registry census. Statuses missing from counts
// are reported as zero.
func SetRequestCounts(counts map[domain.RequestStatus]int) {
	for _, status := range domain.Statuses() {
		RequestsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
