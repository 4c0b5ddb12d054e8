// Package metrics declares the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	// ReservationsCreated counts committed reservations.
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Reservations committed",
	})

	// ReservationsRejected counts failed creations by error kind.
	ReservationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_rejected_total",
			Help: "Reservation requests rejected, by error kind",
		},
		[]string{"kind"},
	)

	// StatusChanges counts committed status transitions by target status.
	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_status_changes_total",
			Help: "Reservation status transitions, by new status",
		},
		[]string{"status"},
	)

	// StorageRetries counts re-runs of a unit of work after a transient
	// storage failure or a lost version race.
	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_retries_total",
			Help: "Units of work re-run, by operation",
		},
		[]string{"op"},
	)

	// Payments counts processPayment outcomes.
	Payments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment attempts, by outcome",
		},
		[]string{"outcome"},
	)

	// Reconciled counts reconciler decisions on pending payments.
	Reconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_reconciled_total",
			Help: "Pending payments resolved by the reconciler, by result",
		},
		[]string{"result"},
	)
)
