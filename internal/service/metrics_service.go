package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the pipeline itself. All methods are nil-safe so callers
// never have to guard.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	stageTotal      *prometheus.CounterVec
	issueTotal      *prometheus.CounterVec
	documentTotal   *prometheus.CounterVec
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

	stageTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_transitions_total",
		Help: "Total job stage transitions",
	}, []string{"stage"})

	issueTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_issues_total",
		Help: "Total validation findings by severity and category",
	}, []string{"severity", "category"})

	documentTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_documents_total",
		Help: "Total generated documents by type and status",
	}, []string{"type", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, stageTotal, issueTotal, documentTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		stageTotal:      stageTotal,
		issueTotal:      issueTotal,
		documentTotal:   documentTotal,
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

// RecordStageTransition counts one job stage change.
func (m *MetricsService) RecordStageTransition(stage models.JobStage) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(string(stage)).Inc()
}

// RecordIssues counts the findings of one validation pass.
func (m *MetricsService) RecordIssues(issues []models.Issue) {
	if m == nil {
		return
	}
	for _, issue := range issues {
		m.issueTotal.WithLabelValues(string(issue.Severity), string(issue.Category)).Inc()
	}
}

// RecordDocument counts one generated document outcome.
func (m *MetricsService) RecordDocument(docType models.DocumentType, status models.DocumentStatus) {
	if m == nil {
		return
	}
	m.documentTotal.WithLabelValues(string(docType), string(status)).Inc()
}
