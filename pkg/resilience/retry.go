package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt,
	// so an operation runs at most MaxRetries+1 times
	MaxRetries int
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff delay
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter randomizes each delay by up to 25% in either direction to
	// avoid thundering herd
	Jitter bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryExecutor runs operations with exponential backoff, classifying
// each failure to decide whether another attempt is worthwhile. When a
// circuit breaker is attached, every attempt's outcome feeds it, and an
// open circuit fails calls fast without invoking the operation at all.
type RetryExecutor struct {
	config  RetryConfig
	breaker *CircuitBreaker
	logger  *logging.Logger
}

// NewRetryExecutor creates a retry executor. The circuit breaker is
// optional; pass nil to retry without one.
func NewRetryExecutor(config RetryConfig, breaker *CircuitBreaker) *RetryExecutor {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.BackoffMultiplier < 1.0 {
		config.BackoffMultiplier = 2.0
	}

	return &RetryExecutor{
		config:  config,
		breaker: breaker,
		logger:  logging.GetLogger(),
	}
}

// Execute runs the operation with retries. Calls blocked by an open
// circuit return a CircuitBreakerError without invoking the operation.
func (r *RetryExecutor) Execute(operation func() (interface{}, error)) (interface{}, error) {
	return r.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		return operation()
	})
}

// ExecuteContext runs the operation with retries, honoring context
// cancellation between attempts and during backoff waits.
func (r *RetryExecutor) ExecuteContext(ctx context.Context, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	if r.breaker != nil && r.breaker.IsOpen() {
		return nil, &CircuitBreakerError{Name: r.breaker.Name(), State: StateOpen}
	}

	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := operation(ctx)
		if err == nil {
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
			if attempt > 0 {
				r.logger.Info("Operation succeeded after retry",
					"attempt", attempt+1,
					"max_retries", r.config.MaxRetries,
				)
			}
			return result, nil
		}

		lastErr = err
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}

		class := Classify(err)
		if class != ClassRetryable {
			r.logger.Debug("Error is not retryable, stopping",
				"error", err.Error(),
				"class", class.String(),
				"attempt", attempt+1,
			)
			return nil, err
		}

		if attempt == r.config.MaxRetries {
			break
		}

		delay := r.delayFor(attempt)

		r.logger.Debug("Operation failed, retrying",
			"error", err.Error(),
			"attempt", attempt+1,
			"max_retries", r.config.MaxRetries,
			"delay", delay,
		)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	r.logger.Error("Operation failed after all retry attempts",
		"error", lastErr.Error(),
		"attempts", r.config.MaxRetries+1,
	)

	// The last error is returned as-is so callers can classify it.
	return nil, lastErr
}

// delayFor computes the backoff delay for the given 0-based attempt.
func (r *RetryExecutor) delayFor(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		delay += (rand.Float64() - 0.5) * 0.5 * delay
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// RetryWithConfig is a convenience function to execute an operation with retry
func RetryWithConfig(ctx context.Context, config RetryConfig, operation func(context.Context) error) error {
	executor := NewRetryExecutor(config, nil)
	_, err := executor.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, operation(ctx)
	})
	return err
}

// Retry is a convenience function to execute an operation with default retry configuration
func Retry(ctx context.Context, operation func(context.Context) error) error {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}
