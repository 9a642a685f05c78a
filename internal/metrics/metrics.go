package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "khata_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "khata_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "khata_reservation_operations_total",
			Help: "Reservation service operations by outcome",
		},
		[]string{"operation", "result"},
	)

	ledgerClamped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khata_ledger_clamped_total",
		Help: "Releases that found fewer reserved units than requested",
	})

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "khata_order_transitions_total",
			Help: "Order status transitions applied",
		},
		[]string{"from", "to"},
	)

	sweptOrders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "khata_sweeper_expired_orders_total",
		Help: "Pending orders expired by the sweeper",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "khata_sweeper_run_duration_seconds",
		Help:    "Duration of one sweeper pass",
		Buckets: prometheus.DefBuckets,
	})

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "khata_events_published_total",
			Help: "Order events handed to the publisher",
		},
		[]string{"event_type", "result"},
	)
)

func ObserveHTTP(method, path, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordReservation counts one reservation service call.
func RecordReservation(operation string, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	reservations.WithLabelValues(operation, result).Inc()
}

func LedgerClamped() { ledgerClamped.Inc() }

func RecordTransition(from, to string) { transitions.WithLabelValues(from, to).Inc() }

func RecordSweep(expired int, seconds float64) {
	sweptOrders.Add(float64(expired))
	sweepDuration.Observe(seconds)
}

func RecordPublish(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsPublished.WithLabelValues(eventType, result).Inc()
}
