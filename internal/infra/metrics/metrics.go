package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SearchMetrics owns the service registry and every collector the retrieval
// paths record into. One instance is shared through the DI container.
type SearchMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchesTotal       *prometheus.CounterVec
	searchDuration      *prometheus.HistogramVec
	stageDuration       *prometheus.HistogramVec
	fusedCandidates     *prometheus.HistogramVec
	duplicatesRemoved   prometheus.Counter
	gatewayTokensTotal  *prometheus.CounterVec
	gatewayCostTotal    *prometheus.CounterVec
	gatewayErrorsTotal  *prometheus.CounterVec
	embedCacheHitsTotal prometheus.Counter
	embedCacheMissTotal prometheus.Counter
	jobsActive          prometheus.Gauge
	documentsEmbedded   prometheus.Counter
}

func NewSearchMetrics(service string) *SearchMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caseret",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caseret",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total search requests by endpoint and outcome.",
		},
		[]string{"service", "endpoint", "outcome"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caseret",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caseret",
			Subsystem: "search",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	fusedCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caseret",
			Subsystem: "search",
			Name:      "fused_candidates",
			Help:      "Distribution of candidates surviving fusion per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 50},
		},
		[]string{"service", "endpoint"},
	)
	duplicatesRemoved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "search",
			Name:      "duplicates_removed_total",
			Help:      "Total near-duplicate candidates dropped.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	gatewayTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "gateway",
			Name:      "tokens_total",
			Help:      "Token usage reported by the model gateway.",
		},
		[]string{"service", "kind", "model"},
	)
	gatewayCostTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "gateway",
			Name:      "cost_total",
			Help:      "Accumulated gateway cost by model.",
		},
		[]string{"service", "kind", "model"},
	)
	gatewayErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Failed gateway calls after retries.",
		},
		[]string{"service", "operation"},
	)
	embedCacheHitsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "gateway",
			Name:      "embed_cache_hits_total",
			Help:      "Query embeddings served from the in-process cache.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	embedCacheMissTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "gateway",
			Name:      "embed_cache_misses_total",
			Help:      "Query embeddings that required a gateway call.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	jobsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caseret",
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Background jobs currently in progress.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsEmbedded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "caseret",
			Subsystem: "jobs",
			Name:      "documents_embedded_total",
			Help:      "Documents whose embeddings were written by bulk jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchesTotal,
		searchDuration,
		stageDuration,
		fusedCandidates,
		duplicatesRemoved,
		gatewayTokensTotal,
		gatewayCostTotal,
		gatewayErrorsTotal,
		embedCacheHitsTotal,
		embedCacheMissTotal,
		jobsActive,
		documentsEmbedded,
	)

	return &SearchMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchesTotal:       searchesTotal,
		searchDuration:      searchDuration,
		stageDuration:       stageDuration,
		fusedCandidates:     fusedCandidates,
		duplicatesRemoved:   duplicatesRemoved,
		gatewayTokensTotal:  gatewayTokensTotal,
		gatewayCostTotal:    gatewayCostTotal,
		gatewayErrorsTotal:  gatewayErrorsTotal,
		embedCacheHitsTotal: embedCacheHitsTotal,
		embedCacheMissTotal: embedCacheMissTotal,
		jobsActive:          jobsActive,
		documentsEmbedded:   documentsEmbedded,
	}
}

func (m *SearchMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route. The registered
// route template is used as the path label to keep cardinality bounded.
func (m *SearchMetrics) Middleware(service string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					status = httpErr.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}

			m.requestTotal.WithLabelValues(
				service,
				c.Request().Method,
				path,
				strconv.Itoa(status),
			).Inc()
			m.requestDuration.WithLabelValues(service, c.Request().Method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

func (m *SearchMetrics) RecordSearch(service, endpoint, outcome string, fused int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.searchesTotal.WithLabelValues(service, endpoint, outcome).Inc()
	m.searchDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if fused >= 0 {
		m.fusedCandidates.WithLabelValues(service, endpoint).Observe(float64(fused))
	}
}

func (m *SearchMetrics) RecordStage(service, stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *SearchMetrics) RecordDuplicatesRemoved(removed int) {
	if removed <= 0 {
		return
	}
	m.duplicatesRemoved.Add(float64(removed))
}

func (m *SearchMetrics) RecordGatewayUsage(service, kind, model string, tokens int64, cost float64) {
	if model == "" {
		model = "unknown"
	}
	if tokens > 0 {
		m.gatewayTokensTotal.WithLabelValues(service, kind, model).Add(float64(tokens))
	}
	if cost > 0 {
		m.gatewayCostTotal.WithLabelValues(service, kind, model).Add(cost)
	}
}

func (m *SearchMetrics) RecordGatewayError(service, operation string) {
	m.gatewayErrorsTotal.WithLabelValues(service, operation).Inc()
}

func (m *SearchMetrics) RecordEmbedCacheHit() {
	m.embedCacheHitsTotal.Inc()
}

func (m *SearchMetrics) RecordEmbedCacheMiss() {
	m.embedCacheMissTotal.Inc()
}

func (m *SearchMetrics) SetActiveJobs(n int) {
	m.jobsActive.Set(float64(n))
}

func (m *SearchMetrics) AddDocumentsEmbedded(n int) {
	if n <= 0 {
		return
	}
	m.documentsEmbedded.Add(float64(n))
}
