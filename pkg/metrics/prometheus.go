package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements the Provider interface using Prometheus
type PrometheusProvider struct {
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	requestsInFlight     prometheus.Gauge
	dbQueryDuration      *prometheus.HistogramVec
	dbQueryTotal         *prometheus.CounterVec
	optimizationDuration *prometheus.HistogramVec
	optimizationLookups  *prometheus.HistogramVec
	validationFailures   *prometheus.CounterVec
	accessViolations     *prometheus.CounterVec
	panics               *prometheus.CounterVec
}

// NewPrometheusProvider creates a new Prometheus metrics provider.
// A nil config uses the defaults.
func NewPrometheusProvider(cfg *Config) *PrometheusProvider {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.ApplyDefaults()
	}

	return &PrometheusProvider{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   cfg.HTTPRequestBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		requestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		dbQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   cfg.DBQueryBuckets,
			},
			[]string{"operation", "table"},
		),
		dbQueryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "db_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
		optimizationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "queryset_optimization_duration_seconds",
				Help:      "Queryset optimization duration in seconds",
				Buckets:   cfg.OptimizationBuckets,
			},
			[]string{"virtual_model", "status"},
		),
		optimizationLookups: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "queryset_optimization_lookups",
				Help:      "Number of lookups compiled per optimization pass",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"virtual_model"},
		),
		validationFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "serializer_validation_failures_total",
				Help:      "Total number of serializer completeness validation failures",
			},
			[]string{"virtual_model", "serializer"},
		),
		accessViolations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "virtual_field_access_violations_total",
				Help:      "Total number of accesses to unresolved virtual fields",
			},
			[]string{"virtual_model", "field"},
		),
		panics: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "panics_recovered_total",
				Help:      "Total number of recovered panics",
			},
			[]string{"location"},
		),
	}
}

// ResponseWriter wraps http.ResponseWriter to capture status code
type ResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordHTTPRequest implements Provider interface
func (p *PrometheusProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	p.requestTotal.WithLabelValues(method, path, status).Inc()
}

// IncRequestsInFlight implements Provider interface
func (p *PrometheusProvider) IncRequestsInFlight() {
	p.requestsInFlight.Inc()
}

// DecRequestsInFlight implements Provider interface
func (p *PrometheusProvider) DecRequestsInFlight() {
	p.requestsInFlight.Dec()
}

// RecordDBQuery implements Provider interface
func (p *PrometheusProvider) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	p.dbQueryTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordOptimization implements Provider interface
func (p *PrometheusProvider) RecordOptimization(virtualModel string, lookupCount int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.optimizationDuration.WithLabelValues(virtualModel, status).Observe(duration.Seconds())
	p.optimizationLookups.WithLabelValues(virtualModel).Observe(float64(lookupCount))
}

// RecordValidationFailure implements Provider interface
func (p *PrometheusProvider) RecordValidationFailure(virtualModel, serializer string) {
	p.validationFailures.WithLabelValues(virtualModel, serializer).Inc()
}

// RecordAccessViolation implements Provider interface
func (p *PrometheusProvider) RecordAccessViolation(virtualModel, field string) {
	p.accessViolations.WithLabelValues(virtualModel, field).Inc()
}

// RecordPanic implements Provider interface
func (p *PrometheusProvider) RecordPanic(location string) {
	p.panics.WithLabelValues(location).Inc()
}

// Handler implements Provider interface
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that collects metrics
func (p *PrometheusProvider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Increment in-flight requests
		p.IncRequestsInFlight()
		defer p.DecRequestsInFlight()

		// Wrap response writer to capture status code
		rw := NewResponseWriter(w)

		// Call next handler
		next.ServeHTTP(rw, r)

		// Record metrics
		duration := time.Since(start)
		status := strconv.Itoa(rw.statusCode)

		p.RecordHTTPRequest(r.Method, r.URL.Path, status, duration)
	})
}
