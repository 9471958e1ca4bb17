package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "inkwave", Name: "feed_reconnects_total", Help: "Number of change feed reconnect attempts by outcome."},
		[]string{"outcome"},
	)
	FeedUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "inkwave", Name: "feed_updates_total", Help: "Number of feed updates by disposition (applied, stale, conflict)."},
		[]string{"disposition"},
	)
	ConflictsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "inkwave", Name: "conflicts_resolved_total", Help: "Number of resolved edit conflicts by chosen side."},
		[]string{"side"},
	)
	InviteRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "inkwave", Name: "invite_redemptions_total", Help: "Number of invite redemption attempts by outcome."},
		[]string{"outcome"},
	)
	PresenceHeartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "inkwave", Name: "presence_heartbeats_total", Help: "Number of presence heartbeats processed."},
	)
	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "inkwave", Name: "open_sessions", Help: "Number of currently open subscription hub sessions."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "inkwave", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "inkwave", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(FeedReconnects)
	reg.MustRegister(FeedUpdates)
	reg.MustRegister(ConflictsResolved)
	reg.MustRegister(InviteRedemptions)
	reg.MustRegister(PresenceHeartbeats)
	reg.MustRegister(OpenSessions)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
