package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizbot_messages_routed_total",
			Help: "Total number of messages routed, by category",
		},
		[]string{"category"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizbot_pipeline_failures_total",
			Help: "Total number of failed messages, by error kind",
		},
		[]string{"kind"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bizbot_pipeline_duration_seconds",
			Help: "Duration of message handling in seconds",
		},
		[]string{"category"},
	)

	OracleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizbot_oracle_request_duration_seconds",
			Help:    "Duration of language model calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"prompt"},
	)

	ChartsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizbot_charts_rendered_total",
			Help: "Total number of charts rendered, by kind",
		},
		[]string{"kind"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizbot_webhook_events_total",
			Help: "Total number of webhook events received, by outcome",
		},
		[]string{"outcome"},
	)

	UsersOnboarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizbot_users_onboarded_total",
			Help: "Total number of new users greeted",
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bizbot_messages_in_flight",
			Help: "Number of messages currently being handled",
		},
	)
)
