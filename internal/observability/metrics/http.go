package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "decision_assistant"

// HTTPServerMetrics is the API process registry. Besides HTTP traffic it
// records retrieval, ask and resilience telemetry reported by the core.
type HTTPServerMetrics struct {
	resilienceCollectors

	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalQueries     *prometheus.CounterVec
	retrievalResults     *prometheus.HistogramVec
	retrievalNoResults   *prometheus.CounterVec
	retrievalDegradation *prometheus.CounterVec

	askTotal       *prometheus.CounterVec
	askDuration    *prometheus.HistogramVec
	loopIterations *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	m := &HTTPServerMetrics{
		resilienceCollectors: newResilienceCollectors(registry, service),
		registry:             registry,
		service:              service,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service", "method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "requests_in_flight",
				Help:        "Number of in-flight HTTP requests.",
				ConstLabels: prometheus.Labels{"service": service},
			},
		),
		retrievalQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "queries_total",
				Help:      "Total retrieval queries by mode.",
			},
			[]string{"service", "mode"},
		),
		retrievalResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "results",
				Help:      "Number of chunks returned per retrieval query.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"service", "mode"},
		),
		retrievalNoResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "empty_total",
				Help:      "Total retrieval queries that returned no chunks.",
			},
			[]string{"service", "mode"},
		),
		retrievalDegradation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "degradations_total",
				Help:      "Total retrieval queries answered without a failed source.",
			},
			[]string{"service", "source"},
		),
		askTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ask",
				Name:      "runs_total",
				Help:      "Total answered questions by agent and outcome.",
			},
			[]string{"service", "agent", "outcome"},
		),
		askDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ask",
				Name:      "duration_seconds",
				Help:      "End-to-end question answering duration in seconds.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"service", "agent"},
		),
		loopIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "loop_iterations",
				Help:      "Knowledge-gap loop iterations per completed strategic workflow.",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.retrievalQueries,
		m.retrievalResults,
		m.retrievalNoResults,
		m.retrievalDegradation,
		m.askTotal,
		m.askDuration,
		m.loopIterations,
	)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) ObserveRetrieval(mode string, results int) {
	if mode == "" {
		mode = "unknown"
	}
	m.retrievalQueries.WithLabelValues(m.service, mode).Inc()
	m.retrievalResults.WithLabelValues(m.service, mode).Observe(float64(results))
	if results == 0 {
		m.retrievalNoResults.WithLabelValues(m.service, mode).Inc()
	}
}

func (m *HTTPServerMetrics) ObserveDegradation(source string) {
	m.retrievalDegradation.WithLabelValues(m.service, source).Inc()
}

func (m *HTTPServerMetrics) ObserveAsk(agent, outcome string, iterations int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.askTotal.WithLabelValues(m.service, agent, outcome).Inc()
	m.askDuration.WithLabelValues(m.service, agent).Observe(duration.Seconds())
	if agent == "strategic" && outcome == "ok" {
		m.loopIterations.WithLabelValues(m.service).Observe(float64(iterations))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
