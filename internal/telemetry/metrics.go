package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks HTTP request latency, shared across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "luna_hub",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var EnergyConsumedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "energy",
		Name:      "consumed_total",
		Help:      "Total energy units consumed, by action.",
	},
	[]string{"action"},
)

var EnergyRefundedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "energy",
		Name:      "refunded_total",
		Help:      "Total energy units refunded, by reason.",
	},
	[]string{"reason"},
)

var EnergyPurchasedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "energy",
		Name:      "purchased_total",
		Help:      "Total energy units credited from purchases, by pack code.",
	},
	[]string{"pack"},
)

var RateLimitDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Total rate limit decisions, by scope and outcome.",
	},
	[]string{"scope", "outcome"},
)

var RateLimitFallbackTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "ratelimit",
		Name:      "fallback_total",
		Help:      "Total times the rate limiter degraded to the event-store or fail-open path.",
	},
	[]string{"mode"},
)

var TokensIssuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "token",
		Name:      "issued_total",
		Help:      "Total tokens issued, by kind (access, refresh, specialist).",
	},
	[]string{"kind"},
)

var SessionsRevokedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "token",
		Name:      "sessions_revoked_total",
		Help:      "Total sessions revoked, by refresh token reuse detection, explicit logout, or logout-all-devices.",
	},
)

var EventsAppendedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "events",
		Name:      "appended_total",
		Help:      "Total events appended to the event store, by event type.",
	},
	[]string{"event_type"},
)

var NarrativeCacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "narrative",
		Name:      "cache_total",
		Help:      "Total narrative context packet lookups, by outcome (hit, miss).",
	},
	[]string{"outcome"},
)

var ActionPipelineTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "orchestration",
		Name:      "action_pipeline_total",
		Help:      "Total metered action pipeline outcomes, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

var CompensatingRefundsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "luna_hub",
		Subsystem: "orchestration",
		Name:      "compensating_refunds_total",
		Help:      "Total automatic compensating refunds issued after a commit failure following a successful action.",
	},
)

// All returns the Luna Hub-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		EnergyConsumedTotal,
		EnergyRefundedTotal,
		EnergyPurchasedTotal,
		RateLimitDecisionsTotal,
		RateLimitFallbackTotal,
		TokensIssuedTotal,
		SessionsRevokedTotal,
		EventsAppendedTotal,
		NarrativeCacheHitsTotal,
		ActionPipelineTotal,
		CompensatingRefundsTotal,
	}
}
