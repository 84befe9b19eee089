package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		BaseDelay:         time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}
}

func TestRetryExecutor_SuccessOnFirstAttempt(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(3), nil)

	attempts := 0
	result, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return "summary", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "summary", result)
	assert.Equal(t, 1, attempts)
}

func TestRetryExecutor_RetriesTransientFailure(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(3), nil)

	attempts := 0
	result, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, appErrors.NewTimeoutError("dashboard query")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetryExecutor_ExhaustsRetries(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(2), nil)

	attempts := 0
	_, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewTimeoutError("dashboard query")
	})

	require.Error(t, err)
	// MaxRetries of 2 means one initial attempt plus two retries.
	assert.Equal(t, 3, attempts)

	// The last error comes back untouched so callers can classify it.
	var appErr *appErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrorTypeTimeout, appErr.Type)
}

func TestRetryExecutor_FatalErrorFailsFast(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(3), nil)

	attempts := 0
	_, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewValidationError("bad experiment id")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
}

func TestRetryExecutor_OpenBreakerFailsFast(t *testing.T) {
	breaker := newTestBreaker(1, time.Minute)
	breaker.RecordFailure()
	require.True(t, breaker.IsOpen())

	executor := NewRetryExecutor(fastRetryConfig(3), breaker)

	attempts := 0
	_, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, nil
	})

	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
	assert.Equal(t, 0, attempts)
}

func TestRetryExecutor_AttemptsFeedBreaker(t *testing.T) {
	breaker := newTestBreaker(2, time.Minute)
	executor := NewRetryExecutor(fastRetryConfig(3), breaker)

	attempts := 0
	_, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewTimeoutError("dashboard query")
	})

	// The breaker gate is checked when execution starts, so all
	// attempts of this run complete even though the streak crosses
	// the threshold partway through.
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.True(t, breaker.IsOpen())

	// The next run is blocked outright.
	_, err = executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
	assert.Equal(t, 4, attempts)
}

func TestRetryExecutor_SuccessClearsBreakerStreak(t *testing.T) {
	breaker := newTestBreaker(3, time.Minute)
	executor := NewRetryExecutor(fastRetryConfig(3), breaker)

	attempts := 0
	_, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, appErrors.NewTimeoutError("dashboard query")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, breaker.FailureCount())
	assert.Equal(t, StateClosed, breaker.State())
}

func TestRetryExecutor_ContextCanceledBeforeStart(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(3), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := executor.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}

func TestRetryExecutor_ContextCanceledDuringBackoff(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}
	executor := NewRetryExecutor(config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	attempts := 0
	start := time.Now()
	_, err := executor.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewTimeoutError("dashboard query")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestRetryExecutor_OnRetryCallback(t *testing.T) {
	var attempts []int
	var delays []time.Duration

	config := fastRetryConfig(2)
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}
	executor := NewRetryExecutor(config, nil)

	_, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, appErrors.NewTimeoutError("dashboard query")
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
	require.Len(t, delays, 2)
	assert.Equal(t, time.Millisecond, delays[0])
	assert.Equal(t, 2*time.Millisecond, delays[1])
}

func TestRetryExecutor_ConfigNormalization(t *testing.T) {
	executor := NewRetryExecutor(RetryConfig{MaxRetries: -5}, nil)

	attempts := 0
	_, err := executor.ExecuteContext(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewTimeoutError("dashboard query")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExecutor_ExecuteWithoutContext(t *testing.T) {
	executor := NewRetryExecutor(fastRetryConfig(1), nil)

	result, err := executor.Execute(func() (interface{}, error) {
		return "plain", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "plain", result)
}

func TestRetryExecutor_BackoffGrowsAndCaps(t *testing.T) {
	executor := NewRetryExecutor(RetryConfig{
		MaxRetries:        5,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          300 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}, nil)

	assert.Equal(t, 100*time.Millisecond, executor.delayFor(0))
	assert.Equal(t, 200*time.Millisecond, executor.delayFor(1))
	assert.Equal(t, 300*time.Millisecond, executor.delayFor(2))
	assert.Equal(t, 300*time.Millisecond, executor.delayFor(3))
}

func TestRetryExecutor_JitterStaysWithinBounds(t *testing.T) {
	executor := NewRetryExecutor(RetryConfig{
		MaxRetries:        1,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}, nil)

	// Jitter shifts each delay by at most 25% in either direction.
	for i := 0; i < 100; i++ {
		delay := executor.delayFor(0)
		assert.GreaterOrEqual(t, delay, 75*time.Millisecond)
		assert.LessOrEqual(t, delay, 125*time.Millisecond)
	}
}

func TestRetryWithConfig(t *testing.T) {
	attempts := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(2), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return appErrors.NewUnavailableError("database")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_DefaultConfig(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
