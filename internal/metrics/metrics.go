// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts TTL-cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wozif_gateway_cache_hits_total",
		Help: "Number of TTL cache hits.",
	})

	// CacheMisses counts TTL-cache misses, including lazy expiries.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wozif_gateway_cache_misses_total",
		Help: "Number of TTL cache misses.",
	})

	// CacheEvictions counts entries evicted lazily or by the sweep.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wozif_gateway_cache_evictions_total",
		Help: "Number of TTL cache entries evicted.",
	})

	// GuardOutcomes counts guard-chain decisions by outcome: allowed,
	// exempt, redirect_signin, redirect_selection, store_not_found.
	GuardOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wozif_gateway_guard_outcomes_total",
		Help: "Access guard chain decisions.",
	}, []string{"outcome"})

	// AuthVerifications counts verification round trips by result.
	AuthVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wozif_gateway_auth_verifications_total",
		Help: "Session verification results.",
	}, []string{"result"})

	// Rewrites counts subdomain-to-path rewrites applied at the edge.
	Rewrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wozif_gateway_rewrites_total",
		Help: "Number of subdomain requests rewritten to path form.",
	})
)
