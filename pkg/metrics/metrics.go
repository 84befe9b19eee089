package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Subsystem bundles
	Cache      *CacheMetrics
	Resilience *ResilienceMetrics

	// System metrics
	DatabaseConnections *prometheus.GaugeVec
	RedisConnections    *prometheus.GaugeVec

	// Performance metrics
	DatabaseQueryDuration *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal *prometheus.CounterVec

	// Authentication metrics
	AuthenticationAttempts *prometheus.CounterVec
	AuthenticationDuration *prometheus.HistogramVec
}

// CacheMetrics covers both cache tiers.
type CacheMetrics struct {
	HitsTotal       *prometheus.CounterVec
	MissesTotal     prometheus.Counter
	StaleReadsTotal *prometheus.CounterVec
	SetsTotal       prometheus.Counter
}

// ResilienceMetrics covers circuit breakers, retries, and fallbacks.
type ResilienceMetrics struct {
	BreakerState        *prometheus.GaugeVec
	BreakerTransitions  *prometheus.CounterVec
	RetryAttempts       *prometheus.CounterVec
	FallbackResolutions *prometheus.CounterVec
	DegradedRequests    *prometheus.CounterVec
	MaintenanceMode     prometheus.Gauge
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "neurolab",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{Cache: &CacheMetrics{}, Resilience: &ResilienceMetrics{}}
	}

	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),

		Cache: &CacheMetrics{
			HitsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "cache_hits_total",
					Help:      "Total number of cache hits by tier",
				},
				[]string{"tier"},
			),
			MissesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "cache_misses_total",
					Help:      "Total number of cache misses across both tiers",
				},
			),
			StaleReadsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "cache_stale_reads_total",
					Help:      "Total number of degraded reads served from stale entries",
				},
				[]string{"source"},
			),
			SetsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "cache_sets_total",
					Help:      "Total number of cache writes",
				},
			),
		},

		Resilience: &ResilienceMetrics{
			BreakerState: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "circuit_breaker_state",
					Help:      "Circuit breaker state per resource (0=closed, 1=half_open, 2=open)",
				},
				[]string{"resource"},
			),
			BreakerTransitions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "circuit_breaker_transitions_total",
					Help:      "Total number of circuit breaker state transitions",
				},
				[]string{"resource", "from", "to"},
			),
			RetryAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "retry_attempts_total",
					Help:      "Total number of retry attempts per resource",
				},
				[]string{"resource"},
			),
			FallbackResolutions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "fallback_resolutions_total",
					Help:      "Total number of fallback resolutions by data type and source",
				},
				[]string{"data_type", "source"},
			),
			DegradedRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "degraded_requests_total",
					Help:      "Total number of requests served in a degraded mode",
				},
				[]string{"resource", "level"},
			),
			MaintenanceMode: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: config.Namespace,
					Subsystem: config.Subsystem,
					Name:      "maintenance_mode",
					Help:      "Whether a maintenance window is currently active (0 or 1)",
				},
			),
		},

		// System metrics
		DatabaseConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "database_connections",
				Help:      "Number of database connections",
			},
			[]string{"state"},
		),
		RedisConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "redis_connections",
				Help:      "Number of Redis connections",
			},
			[]string{"state"},
		),

		// Performance metrics
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "database_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation", "table"},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"component", "error_type"},
		),
		PanicsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "panics_total",
				Help:      "Total number of panics",
			},
			[]string{"component"},
		),

		// Authentication metrics
		AuthenticationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "authentication_attempts_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"provider", "status"},
		),
		AuthenticationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "authentication_duration_seconds",
				Help:      "Authentication duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider", "status"},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.Cache.HitsTotal,
		m.Cache.MissesTotal,
		m.Cache.StaleReadsTotal,
		m.Cache.SetsTotal,
		m.Resilience.BreakerState,
		m.Resilience.BreakerTransitions,
		m.Resilience.RetryAttempts,
		m.Resilience.FallbackResolutions,
		m.Resilience.DegradedRequests,
		m.Resilience.MaintenanceMode,
		m.DatabaseConnections,
		m.RedisConnections,
		m.DatabaseQueryDuration,
		m.ErrorsTotal,
		m.PanicsTotal,
		m.AuthenticationAttempts,
		m.AuthenticationDuration,
	)

	return m
}

// RecordHit records a cache hit on a tier
func (cm *CacheMetrics) RecordHit(tier string) {
	if cm == nil || cm.HitsTotal == nil {
		return
	}
	cm.HitsTotal.WithLabelValues(tier).Inc()
}

// RecordMiss records a miss across both cache tiers
func (cm *CacheMetrics) RecordMiss() {
	if cm == nil || cm.MissesTotal == nil {
		return
	}
	cm.MissesTotal.Inc()
}

// RecordStaleRead records a degraded read served from a stale entry
func (cm *CacheMetrics) RecordStaleRead(source string) {
	if cm == nil || cm.StaleReadsTotal == nil {
		return
	}
	cm.StaleReadsTotal.WithLabelValues(source).Inc()
}

// RecordSet records a cache write
func (cm *CacheMetrics) RecordSet() {
	if cm == nil || cm.SetsTotal == nil {
		return
	}
	cm.SetsTotal.Inc()
}

// RecordBreakerTransition records a circuit breaker state change and
// updates the per-resource state gauge
func (rm *ResilienceMetrics) RecordBreakerTransition(resource, from, to string) {
	if rm == nil || rm.BreakerTransitions == nil {
		return
	}
	rm.BreakerTransitions.WithLabelValues(resource, from, to).Inc()
	rm.BreakerState.WithLabelValues(resource).Set(breakerStateCode(to))
}

// RecordRetryAttempt records one retry of an operation
func (rm *ResilienceMetrics) RecordRetryAttempt(resource string) {
	if rm == nil || rm.RetryAttempts == nil {
		return
	}
	rm.RetryAttempts.WithLabelValues(resource).Inc()
}

// RecordFallback records a fallback resolution
func (rm *ResilienceMetrics) RecordFallback(dataType, source string) {
	if rm == nil || rm.FallbackResolutions == nil {
		return
	}
	rm.FallbackResolutions.WithLabelValues(dataType, source).Inc()
}

// RecordDegradedRequest records a request served in a degraded mode
func (rm *ResilienceMetrics) RecordDegradedRequest(resource, level string) {
	if rm == nil || rm.DegradedRequests == nil {
		return
	}
	rm.DegradedRequests.WithLabelValues(resource, level).Inc()
}

// SetMaintenanceMode updates the maintenance window gauge
func (rm *ResilienceMetrics) SetMaintenanceMode(enabled bool) {
	if rm == nil || rm.MaintenanceMode == nil {
		return
	}
	if enabled {
		rm.MaintenanceMode.Set(1)
	} else {
		rm.MaintenanceMode.Set(0)
	}
}

func breakerStateCode(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates database connection metrics
func (m *Metrics) UpdateDatabaseConnections(open, idle, max int) {
	if m.DatabaseConnections == nil {
		return
	}

	m.DatabaseConnections.WithLabelValues("open").Set(float64(open))
	m.DatabaseConnections.WithLabelValues("idle").Set(float64(idle))
	m.DatabaseConnections.WithLabelValues("max").Set(float64(max))
}

// UpdateRedisConnections updates Redis connection metrics
func (m *Metrics) UpdateRedisConnections(total, idle, stale int) {
	if m.RedisConnections == nil {
		return
	}

	m.RedisConnections.WithLabelValues("total").Set(float64(total))
	m.RedisConnections.WithLabelValues("idle").Set(float64(idle))
	m.RedisConnections.WithLabelValues("stale").Set(float64(stale))
}

// RecordDatabaseQuery records database query metrics
func (m *Metrics) RecordDatabaseQuery(operation, table string, duration time.Duration) {
	if m.DatabaseQueryDuration == nil {
		return
	}

	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordPanic records panic metrics
func (m *Metrics) RecordPanic(component string) {
	if m.PanicsTotal == nil {
		return
	}

	m.PanicsTotal.WithLabelValues(component).Inc()
}

// RecordAuthentication records authentication metrics
func (m *Metrics) RecordAuthentication(provider, status string, duration time.Duration) {
	if m.AuthenticationAttempts == nil {
		return
	}

	m.AuthenticationAttempts.WithLabelValues(provider, status).Inc()
	m.AuthenticationDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.HTTPRequestsInFlight != nil {
			m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
			defer m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Dec()
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// PoolSampler reports connection pool gauges as (total, idle, extra).
type PoolSampler func() (int, int, int)

// MetricsCollector updates connection pool gauges periodically
type MetricsCollector struct {
	metrics     *Metrics
	interval    time.Duration
	sampleDB    PoolSampler
	sampleRedis PoolSampler
	stopCh      chan struct{}
}

// NewMetricsCollector creates a new metrics collector. Samplers may be
// nil when the corresponding backend is not wired up.
func NewMetricsCollector(metrics *Metrics, interval time.Duration, sampleDB, sampleRedis PoolSampler) *MetricsCollector {
	return &MetricsCollector{
		metrics:     metrics,
		interval:    interval,
		sampleDB:    sampleDB,
		sampleRedis: sampleRedis,
		stopCh:      make(chan struct{}),
	}
}

// Start begins metrics collection
func (mc *MetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mc.stopCh:
			return
		case <-ticker.C:
			mc.collectMetrics()
		}
	}
}

// Stop stops metrics collection
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
}

// collectMetrics samples the connection pools
func (mc *MetricsCollector) collectMetrics() {
	if mc.sampleDB != nil {
		open, idle, max := mc.sampleDB()
		mc.metrics.UpdateDatabaseConnections(open, idle, max)
	}
	if mc.sampleRedis != nil {
		total, idle, stale := mc.sampleRedis()
		mc.metrics.UpdateRedisConnections(total, idle, stale)
	}
}
