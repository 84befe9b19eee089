// Package resilience provides circuit breaking, retry with exponential
// backoff, health tracking, maintenance windows and graceful degradation
// for the NeuroLab data access layer.
//
// This package implements the following patterns:
//
// # Circuit Breaker Pattern
//
// The circuit breaker prevents cascading failures by counting consecutive
// failures per resource and rejecting calls outright once a threshold is
// reached. After a recovery timeout a single probe is allowed through.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "database",
//		FailureThreshold: 5,
//		RecoveryTimeout:  60 * time.Second,
//	})
//
//	if !cb.IsOpen() {
//		err := callDatabase(ctx)
//		if err != nil {
//			cb.RecordFailure()
//		} else {
//			cb.RecordSuccess()
//		}
//	}
//
// # Retry with Exponential Backoff
//
// The retry executor automatically retries transient failures with
// exponential backoff and jitter to avoid thundering herd problems, and
// consults a circuit breaker before every run.
//
//	executor := resilience.NewRetryExecutor(resilience.DefaultRetryConfig(), cb)
//	result, err := executor.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
//		return fetchDashboardSummary(ctx)
//	})
//
// # Graceful Degradation
//
// The degradation service ties the pieces together: it runs operations
// under retry and circuit breaking, tracks per-resource health, honors
// maintenance windows and resolves fallbacks (stale cache, generated
// minimal responses, static defaults) when a resource stays down.
//
//	ds := resilience.NewDegradationService(resilience.DefaultDegradationConfig(), fallbacks, m, alerts)
//	result, err := ds.Run(ctx, "database", "dashboard_summary", fctx, op)
//	if result.Degraded {
//		// annotate the response before returning it
//	}
//
// # Error Alerting
//
// The alerting system generates and routes alerts based on error patterns
// and system health changes.
//
//	am := resilience.NewAlertManager()
//	am.AddHandler(resilience.NewLoggingAlertHandler())
//
//	eag := resilience.NewErrorAlertGenerator(am)
//	eag.HandleError(ctx, err, "database", metadata)
//
// The package is designed to be thread-safe and can handle high-concurrency
// scenarios typical in API backends.
package resilience
