package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caryvn_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caryvn_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caryvn_provider_requests_total",
			Help: "Total number of SMM provider API calls",
		},
		[]string{"action", "outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caryvn_provider_request_duration_seconds",
			Help:    "SMM provider call duration in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caryvn_orders_placed_total",
			Help: "Total number of orders placed",
		},
		[]string{"outcome"},
	)

	OrdersReconciledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caryvn_orders_reconciled_total",
			Help: "Total number of order status updates applied by reconciliation",
		},
	)

	DepositsConfirmedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caryvn_deposits_confirmed_total",
			Help: "Total number of deposit confirmations settled",
		},
		[]string{"path"},
	)
)
