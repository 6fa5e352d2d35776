package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Key store metrics
	KeyOperationsTotal     *prometheus.CounterVec
	ProviderKeys           *prometheus.GaugeVec
	BillingMode            *prometheus.GaugeVec
	EstimatedCostPerMinute prometheus.Gauge

	// Validation metrics
	ValidationsTotal     *prometheus.CounterVec
	ValidationDuration   *prometheus.HistogramVec
	ValidationCacheTotal *prometheus.CounterVec

	// Vendor probe metrics, one probe per validation attempt
	VendorProbesTotal   *prometheus.CounterVec
	VendorProbeDuration *prometheus.HistogramVec
	VendorBreakerState  *prometheus.GaugeVec
	VendorBreakerTrips  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		// Key store metrics
		KeyOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "keys",
				Name:      "operations_total",
				Help:      "Total number of provider key operations",
			},
			[]string{"operation", "result"},
		),
		ProviderKeys: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "voicedesk",
				Subsystem: "keys",
				Name:      "stored",
				Help:      "Number of stored provider keys per category",
			},
			[]string{"category"},
		),
		BillingMode: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "voicedesk",
				Subsystem: "billing",
				Name:      "byok",
				Help:      "Billing mode per category (0=platform, 1=byok)",
			},
			[]string{"category"},
		),
		EstimatedCostPerMinute: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "voicedesk",
				Subsystem: "billing",
				Name:      "estimated_cost_per_minute_usd",
				Help:      "Estimated blended cost per minute in USD",
			},
		),

		// Validation metrics
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "validation",
				Name:      "checks_total",
				Help:      "Total number of key validations by outcome",
			},
			[]string{"provider", "outcome"},
		),
		ValidationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voicedesk",
				Subsystem: "validation",
				Name:      "duration_seconds",
				Help:      "Duration of key validations in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"provider"},
		),
		ValidationCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "validation",
				Name:      "cache_lookups_total",
				Help:      "Total number of validation cache lookups",
			},
			[]string{"backend", "result"},
		),

		// Vendor probe metrics
		VendorProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "vendor",
				Name:      "probes_total",
				Help:      "Vendor probes by result (accepted, throttled, rejected, unreachable, cancelled)",
			},
			[]string{"vendor", "result"},
		),
		VendorProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voicedesk",
				Subsystem: "vendor",
				Name:      "probe_duration_seconds",
				Help:      "Round trip time of vendor probes in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"vendor"},
		),
		VendorBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "voicedesk",
				Subsystem: "vendor",
				Name:      "breaker_state",
				Help:      "Vendor breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"vendor"},
		),
		VendorBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "vendor",
				Name:      "breaker_trips_total",
				Help:      "Times a vendor breaker opened",
			},
			[]string{"vendor"},
		),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voicedesk",
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voicedesk",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voicedesk",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voicedesk",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// SetGlobalMetrics replaces the global metrics instance (useful for testing)
func SetGlobalMetrics(m *Metrics) {
	globalMetrics = m
}

// RecordKeyOperation records a key store operation
func (m *Metrics) RecordKeyOperation(operation, result string) {
	m.KeyOperationsTotal.WithLabelValues(operation, result).Inc()
}

// SetProviderKeyCount sets the number of stored keys for a category
func (m *Metrics) SetProviderKeyCount(category string, count int) {
	m.ProviderKeys.WithLabelValues(category).Set(float64(count))
}

// SetBillingMode sets the billing mode gauge for a category
func (m *Metrics) SetBillingMode(category string, byok bool) {
	value := 0.0
	if byok {
		value = 1
	}
	m.BillingMode.WithLabelValues(category).Set(value)
}

// SetEstimatedCost sets the estimated blended cost per minute
func (m *Metrics) SetEstimatedCost(costPerMinute float64) {
	m.EstimatedCostPerMinute.Set(costPerMinute)
}

// RecordValidation records a key validation outcome and duration
func (m *Metrics) RecordValidation(provider, outcome string, duration time.Duration) {
	m.ValidationsTotal.WithLabelValues(provider, outcome).Inc()
	m.ValidationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordValidationCache records a validation cache hit or miss
func (m *Metrics) RecordValidationCache(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ValidationCacheTotal.WithLabelValues(backend, result).Inc()
}

// RecordVendorProbe records one vendor probe and its round trip time
func (m *Metrics) RecordVendorProbe(vendor, result string, duration time.Duration) {
	m.VendorProbesTotal.WithLabelValues(vendor, result).Inc()
	m.VendorProbeDuration.WithLabelValues(vendor).Observe(duration.Seconds())
}

// SetVendorBreakerState sets a vendor breaker's state gauge
func (m *Metrics) SetVendorBreakerState(vendor string, state int) {
	m.VendorBreakerState.WithLabelValues(vendor).Set(float64(state))
}

// RecordVendorBreakerTrip counts a vendor breaker opening
func (m *Metrics) RecordVendorBreakerTrip(vendor string) {
	m.VendorBreakerTrips.WithLabelValues(vendor).Inc()
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveValidation records the validation outcome and duration
func (t *Timer) ObserveValidation(provider, outcome string) {
	t.metrics.RecordValidation(provider, outcome, time.Since(t.start))
}

// ObserveVendorProbe records a vendor probe result with the elapsed time
func (t *Timer) ObserveVendorProbe(vendor, result string) {
	t.metrics.RecordVendorProbe(vendor, result, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
