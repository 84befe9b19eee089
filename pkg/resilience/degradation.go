package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/metrics"
)

// Operation is a guarded unit of work executed by the degradation service.
type Operation func(ctx context.Context) (interface{}, error)

// DegradationConfig configures retry, circuit breaking and the
// retry-after hints handed back to clients during outages.
type DegradationConfig struct {
	Retry            RetryConfig
	FailureThreshold int
	RecoveryTimeout  time.Duration
	RetryAfterHint   time.Duration
}

// DefaultDegradationConfig returns production defaults.
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		Retry:            DefaultRetryConfig(),
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		RetryAfterHint:   30 * time.Second,
	}
}

// OperationResult carries the value produced by a guarded operation
// together with the degradation flags the transport layer maps into
// response metadata.
type OperationResult struct {
	Value          interface{}
	Duration       time.Duration
	Degraded       bool
	PartialFailure bool
	Stale          bool
	FallbackSource string
	Confidence     float64
	Message        string
	BreakerOpen    bool
	RetryAfter     time.Duration
}

// DegradationService coordinates retries, circuit breaking, health
// tracking, maintenance windows and fallback resolution for named
// resources. Breakers and executors are created lazily per resource,
// so callers never register anything up front.
type DegradationService struct {
	mutex       sync.Mutex
	breakers    map[string]*CircuitBreaker
	executors   map[string]*RetryExecutor
	errorCounts map[string]int

	monitor     *HealthMonitor
	maintenance *MaintenanceWindow
	fallbacks   *FallbackResolver

	config  DegradationConfig
	logger  *logging.Logger
	metrics *metrics.ResilienceMetrics
	alerts  *AlertManager
}

// NewDegradationService creates a degradation service. The fallback
// resolver, metrics and alert manager may all be nil; the service then
// degrades to plain retry plus circuit breaking.
func NewDegradationService(config DegradationConfig, fallbacks *FallbackResolver, m *metrics.ResilienceMetrics, alerts *AlertManager) *DegradationService {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.RetryAfterHint <= 0 {
		config.RetryAfterHint = 30 * time.Second
	}

	return &DegradationService{
		breakers:    make(map[string]*CircuitBreaker),
		executors:   make(map[string]*RetryExecutor),
		errorCounts: make(map[string]int),
		monitor:     NewHealthMonitor(),
		maintenance: NewMaintenanceWindow(),
		fallbacks:   fallbacks,
		config:      config,
		logger:      logging.GetLogger(),
		metrics:     m,
		alerts:      alerts,
	}
}

// Monitor returns the health monitor backing this service.
func (ds *DegradationService) Monitor() *HealthMonitor {
	return ds.monitor
}

// Maintenance returns the maintenance window backing this service.
func (ds *DegradationService) Maintenance() *MaintenanceWindow {
	return ds.maintenance
}

// Breaker returns the circuit breaker for a resource, if one has been
// created by a previous operation.
func (ds *DegradationService) Breaker(resource string) (*CircuitBreaker, bool) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	breaker, exists := ds.breakers[resource]
	return breaker, exists
}

// Run executes op under the resource's retry executor and circuit
// breaker. Infrastructure failures flow through the fallback chain;
// callers only see an error when no fallback can serve the request.
// Client errors (validation, not found, auth) pass through untouched.
func (ds *DegradationService) Run(ctx context.Context, resource, dataType string, fctx FallbackContext, op Operation) (*OperationResult, error) {
	if ds.maintenance.IsEnabledFor(resource) {
		return ds.maintenanceResult(resource)
	}

	executor := ds.executorFor(resource)

	start := time.Now()
	value, err := executor.ExecuteContext(ctx, op)
	duration := time.Since(start)

	if err == nil {
		ds.resetErrorStreak(resource)
		ds.monitor.UpdateHealth(resource, StatusHealthy, duration, 0, "")

		result := &OperationResult{Value: value, Duration: duration}
		// A successful call is only annotated while this resource
		// itself still reads degraded, e.g. from a slow response.
		if ds.monitor.IsDegraded(resource) {
			result.Degraded = true
		}
		return result, nil
	}

	class := Classify(err)
	if class == ClassFatal {
		// Says nothing about the health of the resource.
		return &OperationResult{Duration: duration}, err
	}

	streak := ds.bumpErrorStreak(resource)
	breakerOpen := class == ClassBreakerOpen
	if breakerOpen {
		ds.monitor.UpdateHealth(resource, StatusUnavailable, duration, streak, err.Error())
	} else {
		ds.monitor.UpdateHealth(resource, StatusDegraded, duration, streak, err.Error())
	}

	ds.logger.LogResilienceEvent(ctx, "operation_failed", resource, logrus.Fields{
		"data_type":    dataType,
		"breaker_open": breakerOpen,
		"error":        err.Error(),
	})

	if ds.fallbacks != nil {
		if fallback, ok := ds.fallbacks.Resolve(ctx, dataType, fctx); ok {
			_, level := ds.monitor.Overall()
			ds.metrics.RecordDegradedRequest(resource, level.String())

			return &OperationResult{
				Value:          fallback.Value,
				Duration:       duration,
				Degraded:       true,
				PartialFailure: true,
				Stale:          fallback.IsStale,
				FallbackSource: fallback.Source,
				Confidence:     fallback.Confidence,
				Message:        fallback.Message,
				BreakerOpen:    breakerOpen,
			}, nil
		}
	}

	result := &OperationResult{
		Duration:    duration,
		Degraded:    true,
		BreakerOpen: breakerOpen,
		RetryAfter:  ds.retryAfter(breakerOpen),
	}
	return result, errors.NewUnavailableError(resource).WithCause(err)
}

// CheckAvailability reports whether a resource should be called at all,
// with a human-readable reason when it should not.
func (ds *DegradationService) CheckAvailability(resource string) (bool, string) {
	if ds.maintenance.IsEnabledFor(resource) {
		return false, ds.maintenance.Message()
	}

	ds.mutex.Lock()
	breaker, exists := ds.breakers[resource]
	ds.mutex.Unlock()

	if exists && breaker.IsOpen() {
		return false, "circuit breaker open"
	}

	if health, tracked := ds.monitor.GetResourceHealth(resource); tracked && health.Status == StatusUnavailable {
		return false, "resource unavailable"
	}

	return true, ""
}

// EnableMaintenance opens a maintenance window. With no resources the
// whole service is gated; otherwise only the named resources are. An
// empty message selects the default; a zero duration keeps the window
// open until DisableMaintenance is called.
func (ds *DegradationService) EnableMaintenance(message string, duration time.Duration, resources ...string) {
	ds.maintenance.Enable(message, duration, resources...)
	ds.metrics.SetMaintenanceMode(true)

	ds.sendAlert(Alert{
		Severity:    SeverityWarning,
		Title:       "Maintenance Mode Enabled",
		Description: ds.maintenance.Message(),
		Source:      "degradation_service",
		Tags:        map[string]string{"component": "maintenance"},
	})
}

// DisableMaintenance ends maintenance mode.
func (ds *DegradationService) DisableMaintenance() {
	ds.maintenance.Disable()
	ds.metrics.SetMaintenanceMode(false)

	ds.sendAlert(Alert{
		Severity: SeverityInfo,
		Title:    "Maintenance Mode Disabled",
		Source:   "degradation_service",
		Tags:     map[string]string{"component": "maintenance"},
	})
}

// StatusInfo returns a point-in-time view of the degradation state for
// status endpoints.
func (ds *DegradationService) StatusInfo() map[string]interface{} {
	status, level := ds.monitor.Overall()
	if ds.maintenance.IsEnabled() && statusRank(StatusMaintenance) > statusRank(status) {
		status = StatusMaintenance
		if level < LevelModerate {
			level = LevelModerate
		}
	}

	ds.mutex.Lock()
	breakers := make(map[string]interface{}, len(ds.breakers))
	for name, breaker := range ds.breakers {
		breakers[name] = breaker.Status()
	}
	ds.mutex.Unlock()

	return map[string]interface{}{
		"status":            status.String(),
		"degradation_level": level.String(),
		"resources":         ds.monitor.Status()["resources"],
		"circuit_breakers":  breakers,
		"maintenance":       ds.maintenance.Status(),
	}
}

func (ds *DegradationService) executorFor(resource string) *RetryExecutor {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if executor, exists := ds.executors[resource]; exists {
		return executor
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             resource,
		FailureThreshold: ds.config.FailureThreshold,
		RecoveryTimeout:  ds.config.RecoveryTimeout,
		OnStateChange:    ds.onBreakerStateChange,
	})

	retryConfig := ds.config.Retry
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		ds.metrics.RecordRetryAttempt(resource)
	}

	executor := NewRetryExecutor(retryConfig, breaker)
	ds.breakers[resource] = breaker
	ds.executors[resource] = executor
	return executor
}

func (ds *DegradationService) onBreakerStateChange(name string, from, to CircuitState) {
	ds.metrics.RecordBreakerTransition(name, from.String(), to.String())

	switch {
	case to == StateOpen:
		ds.sendAlert(Alert{
			Severity:    SeverityError,
			Title:       "Circuit Breaker Opened",
			Description: "Circuit breaker '" + name + "' opened after repeated failures",
			Source:      name,
			Tags:        map[string]string{"component": "circuit_breaker", "state": to.String()},
		})
	case to == StateClosed && from != StateClosed:
		ds.sendAlert(Alert{
			Severity:    SeverityInfo,
			Title:       "Circuit Breaker Recovered",
			Description: "Circuit breaker '" + name + "' closed after a successful probe",
			Source:      name,
			Tags:        map[string]string{"component": "circuit_breaker", "state": to.String()},
		})
	}
}

func (ds *DegradationService) sendAlert(alert Alert) {
	if ds.alerts == nil {
		return
	}
	if err := ds.alerts.SendAlert(context.Background(), alert); err != nil {
		ds.logger.Warn("Failed to send alert",
			"title", alert.Title,
			"source", alert.Source,
			"error", err,
		)
	}
}

func (ds *DegradationService) maintenanceResult(resource string) (*OperationResult, error) {
	retryAfter := ds.maintenance.Remaining()
	if retryAfter <= 0 {
		retryAfter = ds.config.RetryAfterHint
	}

	result := &OperationResult{
		Degraded:   true,
		Message:    ds.maintenance.Message(),
		RetryAfter: retryAfter,
	}
	return result, errors.NewUnavailableError(resource).WithDetail("reason", "maintenance")
}

func (ds *DegradationService) bumpErrorStreak(resource string) int {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.errorCounts[resource]++
	return ds.errorCounts[resource]
}

func (ds *DegradationService) resetErrorStreak(resource string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	delete(ds.errorCounts, resource)
}

func (ds *DegradationService) retryAfter(breakerOpen bool) time.Duration {
	if breakerOpen {
		return ds.config.RecoveryTimeout
	}
	return ds.config.RetryAfterHint
}
