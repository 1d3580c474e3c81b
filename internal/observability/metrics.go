package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbp_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hbp_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hbp_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last batch",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hbp_rabbit_publish_retries_total",
			Help: "Total rabbit publish failures left for the next batch",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hbp_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbp_webhook_events_total",
			Help: "Payment processor events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	GatewayCalls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hbp_gateway_call_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	Refunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbp_refunds_total",
			Help: "Refund requests by outcome",
		},
		[]string{"outcome"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbp_notifications_total",
			Help: "Booking notifications by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ReconciliationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbp_reconciliations_recorded_total",
			Help: "Asynchronous failures recorded for manual or automatic reconciliation",
		},
		[]string{"kind"},
	)

	ReconciliationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbp_reconciliations_resolved_total",
			Help: "Reconciliation records replayed by the worker, by result",
		},
		[]string{"kind", "result"},
	)

	CancellationsWithoutRefund = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hbp_cancellations_without_refund_total",
			Help: "Bookings cancelled through the status-only endpoint, whose charge was not refunded",
		},
	)
)
