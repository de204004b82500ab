package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

const namespace = "ffa"

// HTTPServerMetrics owns the API registry. It also implements ports.RetrievalObserver.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	retrievalTotal    *prometheus.CounterVec
	retrievalRecords  *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec
	embeddingFailures *prometheus.CounterVec
	answerTotal       *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	corpusInfo        *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control.",
		},
		[]string{"service", "reason"},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Retrieval calls by the strategy that produced the result.",
		},
		[]string{"service", "method"},
	)
	retrievalRecords := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "records",
			Help:      "Records returned per retrieval call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds by method.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 3},
		},
		[]string{"service", "method"},
	)
	embeddingFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "embedding_failures_total",
			Help:      "Query embedding or vector query failures that fell through to lower strategies.",
		},
		[]string{"service", "kind"},
	)
	answerTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Answers by outcome.",
		},
		[]string{"service", "outcome"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)
	corpusInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "corpus",
			Name:      "records",
			Help:      "Records in the loaded corpus snapshot.",
		},
		[]string{"service", "version", "vector_enabled"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		retrievalTotal,
		retrievalRecords,
		retrievalDuration,
		embeddingFailures,
		answerTotal,
		breakerState,
		corpusInfo,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		service:           service,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		rejectedTotal:     rejectedTotal,
		retrievalTotal:    retrievalTotal,
		retrievalRecords:  retrievalRecords,
		retrievalDuration: retrievalDuration,
		embeddingFailures: embeddingFailures,
		answerTotal:       answerTotal,
		breakerState:      breakerState,
		corpusInfo:        corpusInfo,
	}
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

// normalizePath folds ids out of path labels to keep cardinality bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/entities/") && strings.HasSuffix(path, "/records"):
		return "/v1/entities/{entity_id}/records"
	case strings.HasPrefix(path, "/v1/records/"):
		return "/v1/records/{record_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) ObserveRetrieval(method domain.Method, records int, duration time.Duration) {
	label := string(method)
	if label == "" {
		label = "unknown"
	}
	m.retrievalTotal.WithLabelValues(m.service, label).Inc()
	m.retrievalRecords.WithLabelValues(m.service).Observe(float64(records))
	m.retrievalDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveEmbeddingFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.embeddingFailures.WithLabelValues(m.service, kind).Inc()
}

func (m *HTTPServerMetrics) RecordAnswer(noContext bool) {
	outcome := "answered"
	if noContext {
		outcome = "no_context"
	}
	m.answerTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordRejection(reason string) {
	m.rejectedTotal.WithLabelValues(m.service, reason).Inc()
}

// ObserveBreakerState matches resilience.StateListener.
func (m *HTTPServerMetrics) ObserveBreakerState(operation, _, to string) {
	open := 0.0
	if to != "closed" {
		open = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(open)
}

func (m *HTTPServerMetrics) SetCorpus(version string, records int, vectorEnabled bool) {
	m.corpusInfo.Reset()
	m.corpusInfo.WithLabelValues(m.service, version, strconv.FormatBool(vectorEnabled)).Set(float64(records))
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
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
