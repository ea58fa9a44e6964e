package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ah_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ah_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ah_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	BidsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_bids_accepted_total",
			Help: "Total bids accepted",
		},
	)

	BidsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_bids_rejected_total",
			Help: "Total bids rejected",
		},
	)

	FundsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_settlement_released_total",
			Help: "Total sales with funds released to the seller",
		},
	)

	BuyersRefunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_settlement_refunded_total",
			Help: "Total sales refunded to the buyer",
		},
	)

	AttemptsReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ah_gateway_attempts_reconciled_total",
			Help: "Total gateway attempts finalized by the reconciler",
		},
	)
)
