// Package metrics exposes the Prometheus counters this server tracks.
// None of spec behavior depends on these values — they are ambient
// observability, wired at /api/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts every /api/remote and /api/download request by
	// route and response status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unshackle_api_requests_total",
		Help: "Total number of API requests by route and status",
	}, []string{"route", "status"})

	// RetriesTotal counts HTTP Client Facade retry attempts by outcome.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unshackle_client_retries_total",
		Help: "Total number of outbound HTTP retry attempts by outcome",
	}, []string{"outcome"})

	// SessionCacheTotal counts Local Session Cache lookups by hit/miss.
	SessionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unshackle_session_cache_total",
		Help: "Total number of Local Session Cache lookups by result",
	}, []string{"result"})
)

// ObserveRequest records one completed API request.
func ObserveRequest(route string, status int) {
	RequestsTotal.WithLabelValues(route, statusLabel(status)).Inc()
}

// ObserveRetry records one outbound retry attempt outcome.
func ObserveRetry(outcome string) {
	RetriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSessionCacheHit records a Local Session Cache hit.
func ObserveSessionCacheHit() { SessionCacheTotal.WithLabelValues("hit").Inc() }

// ObserveSessionCacheMiss records a Local Session Cache miss.
func ObserveSessionCacheMiss() { SessionCacheTotal.WithLabelValues("miss").Inc() }

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
