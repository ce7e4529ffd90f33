package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ReconcileTotal counts Reconcile calls by caller channel and result
	// (granted, duplicate, error).
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_total",
			Help: "Reconciliation attempts by source and result",
		},
		[]string{"source", "result"},
	)

	CreditsGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_granted_total",
			Help: "Credits granted by reason",
		},
		[]string{"reason"},
	)

	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_reservations_total",
			Help: "Credit reservations by result (reserved, insufficient, rolled_back)",
		},
		[]string{"result"},
	)

	PollTasksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_poll_tasks_active",
			Help: "Number of running payment poll tasks",
		},
	)

	PollOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_poll_outcomes_total",
			Help: "Finished payment poll tasks by outcome",
		},
		[]string{"outcome"},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Payment gateway calls by operation and result",
		},
		[]string{"op", "result"},
	)
)
