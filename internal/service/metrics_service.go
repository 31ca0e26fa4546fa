package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the records API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	enrollmentsCreated  prometheus.Counter
	enrollmentsRejected *prometheus.CounterVec
	gradesSubmitted     *prometheus.CounterVec
	enrollmentTxRetries prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	enrollmentsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total enrollments successfully created",
	})

	enrollmentsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_rejected_total",
		Help: "Total enrollment attempts rejected, by reason",
	}, []string{"reason"})

	gradesSubmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grades_submitted_total",
		Help: "Total grade submissions, by letter",
	}, []string{"letter"})

	enrollmentTxRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_tx_retries_total",
		Help: "Total retried enrollment insert transactions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, enrollmentsCreated, enrollmentsRejected, gradesSubmitted, enrollmentTxRetries, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		enrollmentsCreated:  enrollmentsCreated,
		enrollmentsRejected: enrollmentsRejected,
		gradesSubmitted:     gradesSubmitted,
		enrollmentTxRetries: enrollmentTxRetries,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordEnrollmentCreated counts a successful enrollment.
func (m *MetricsService) RecordEnrollmentCreated() {
	if m == nil {
		return
	}
	m.enrollmentsCreated.Inc()
}

// RecordEnrollmentRejection counts a rejected enrollment attempt by reason.
func (m *MetricsService) RecordEnrollmentRejection(reason string) {
	if m == nil {
		return
	}
	m.enrollmentsRejected.WithLabelValues(reason).Inc()
}

// RecordGradeSubmission counts a grade submission by letter.
func (m *MetricsService) RecordGradeSubmission(letter string) {
	if m == nil {
		return
	}
	m.gradesSubmitted.WithLabelValues(letter).Inc()
}

// RecordEnrollmentRetry counts a retried enrollment insert transaction.
func (m *MetricsService) RecordEnrollmentRetry() {
	if m == nil {
		return
	}
	m.enrollmentTxRetries.Inc()
}
