package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	InboundRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_inbound_requests_total",
			Help: "Inbound webhook calls by route and response status",
		},
		[]string{"route", "status"},
	)

	IdempotentReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_idempotent_replays_total",
			Help: "Inbound calls answered from the idempotency store",
		},
		[]string{"route"},
	)

	InboundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zapgate_inbound_duration_seconds",
			Help:    "Inbound webhook processing latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	OutboundDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapgate_outbound_deliveries_total",
			Help: "Outbound signed event deliveries by event and outcome",
		},
		[]string{"event", "outcome"}, // delivered|retry|failed|breaker_open
	)

	OutboxBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zapgate_outbox_due",
			Help: "Outbox messages due at the last relay poll",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		InboundRequests,
		IdempotentReplays,
		InboundDuration,
		OutboundDeliveries,
		OutboxBacklog,
	)
}
