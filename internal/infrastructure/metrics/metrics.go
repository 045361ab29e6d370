package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poster-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Generation counters
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "generations_total",
			Help:      "Total poster generation attempts",
		},
		[]string{"status"},
	)

	// Generation duration
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "generation_duration_seconds",
			Help:      "Model invocation plus upload duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60},
		},
	)

	// Credit reservation outcomes
	CreditReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "credit_reservations_total",
			Help:      "Total credit reservation attempts",
		},
		[]string{"outcome"},
	)

	// Credit refunds
	CreditRefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "credit_refunds_total",
			Help:      "Total best-effort credit refunds",
		},
		[]string{"status"},
	)

	// Share operations
	SharesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "shares_created_total",
			Help:      "Total share links minted",
		},
	)

	ShareResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "share_resolutions_total",
			Help:      "Total public share resolutions",
		},
		[]string{"outcome"},
	)

	// Presign URL duration
	PresignDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "poster",
			Subsystem: "api",
			Name:      "presign_duration_seconds",
			Help:      "Presigned URL generation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordGeneration records one generation attempt
func RecordGeneration(status string, durationSec float64) {
	GenerationsTotal.WithLabelValues(status).Inc()
	GenerationDuration.Observe(durationSec)
}

// RecordReservation records a credit reservation outcome
func RecordReservation(outcome string) {
	CreditReservationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRefund records a refund attempt
func RecordRefund(status string) {
	CreditRefundsTotal.WithLabelValues(status).Inc()
}

// RecordShareResolution records a public share resolution
func RecordShareResolution(outcome string) {
	ShareResolutionsTotal.WithLabelValues(outcome).Inc()
}
