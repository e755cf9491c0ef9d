package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MovementsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_recorded_total",
		Help: "Total number of movement log records appended",
	}, []string{"kind"})

	ReservationsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_scheduled_total",
		Help: "Total number of reservations scheduled",
	})

	ReservationsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_cancelled_total",
		Help: "Total number of reservations cancelled before they were due",
	})

	ReservationsFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_fulfilled_total",
		Help: "Total number of reservations applied to on-hand",
	})

	ReservationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of due reservations that could not be applied",
	})

	StaleWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_stale_writes_total",
		Help: "Total number of saves refused because the table changed since load",
	}, []string{"table"})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reconcile_latency_seconds",
		Help:    "Latency of reconciliation passes",
		Buckets: prometheus.DefBuckets,
	})

	LowStockItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stock_items_below_alert",
		Help: "Number of SKUs whose on-hand is below the alert threshold",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
