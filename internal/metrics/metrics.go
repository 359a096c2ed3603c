package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Consumption metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questforge_worker_events_consumed_total",
			Help: "Total number of event envelopes consumed from the bus",
		},
		[]string{"stream"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questforge_worker_events_dropped_total",
			Help: "Total number of envelopes dropped before dispatch",
		},
		[]string{"reason"},
	)

	// Handler metrics
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "questforge_worker_handler_duration_seconds",
			Help:    "Duration of handler invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questforge_worker_handler_errors_total",
			Help: "Total number of failed handler invocations",
		},
		[]string{"handler"},
	)

	// Derived event metrics
	DerivedEventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questforge_worker_derived_events_total",
			Help: "Total number of derived events published",
		},
		[]string{"event"},
	)

	EmitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questforge_worker_emit_failures_total",
			Help: "Total number of derived event publishes that failed and marked the source stuck",
		},
	)

	HopCapDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questforge_worker_hop_cap_drops_total",
			Help: "Total number of derived events dropped at the cascade hop cap",
		},
	)

	// Sweep metrics
	StuckEventsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questforge_worker_stuck_events_swept_total",
			Help: "Total number of stuck events redispatched by the sweep",
		},
	)

	FreezeFlagsReset = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questforge_worker_freeze_flags_reset_total",
			Help: "Total number of streak freeze flags cleared by the nightly sweep",
		},
	)

	// Redemption metrics
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questforge_worker_redemptions_total",
			Help: "Total number of redemption commands processed",
		},
		[]string{"outcome"},
	)
)
