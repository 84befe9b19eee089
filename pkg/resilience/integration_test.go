package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
)

// flakyBackend simulates a datastore that can be switched between
// healthy and failing.
type flakyBackend struct {
	mutex   sync.Mutex
	failing bool
	calls   int
}

func (b *flakyBackend) setFailing(failing bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.failing = failing
}

func (b *flakyBackend) callCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.calls
}

func (b *flakyBackend) fetch(ctx context.Context) (interface{}, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.calls++
	if b.failing {
		return nil, appErrors.NewTimeoutError("dashboard query")
	}
	return map[string]interface{}{"total_experiments": 7}, nil
}

func TestIntegration_OutageServedFromFallbacksUntilRecovery(t *testing.T) {
	store := newFakeStaleStore()
	store.put("dashboard_summary", map[string]interface{}{"total_experiments": 5}, 2*time.Minute)
	resolver, _, statics := NewDefaultFallbackChain(store, nil)
	statics.Register("dashboard_summary", map[string]interface{}{"total_experiments": 0})

	config := DegradationConfig{
		Retry:            fastRetryConfig(1),
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		RetryAfterHint:   15 * time.Second,
	}
	ds := NewDegradationService(config, resolver, nil, nil)
	backend := &flakyBackend{}

	// Healthy phase: fresh data, no degradation flags.
	result, err := ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Equal(t, map[string]interface{}{"total_experiments": 7}, result.Value)

	// Outage phase: every run is served from the stale cache.
	backend.setFailing(true)

	result, err = ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.True(t, result.PartialFailure)
	assert.True(t, result.Stale)
	assert.Equal(t, "stale_cache", result.FallbackSource)
	assert.Equal(t, map[string]interface{}{"total_experiments": 5}, result.Value)
	assert.False(t, result.BreakerOpen)

	// The second failing run crosses the failure threshold.
	result, err = ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
	require.NoError(t, err)
	assert.True(t, result.PartialFailure)

	breaker, exists := ds.Breaker("database")
	require.True(t, exists)
	require.True(t, breaker.IsOpen())
	callsWhenOpened := backend.callCount()

	// With the circuit open the backend is left alone, but clients
	// still get stale data.
	result, err = ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
	require.NoError(t, err)
	assert.True(t, result.BreakerOpen)
	assert.Equal(t, "stale_cache", result.FallbackSource)
	assert.Equal(t, callsWhenOpened, backend.callCount())

	health, _ := ds.Monitor().GetResourceHealth("database")
	assert.Equal(t, StatusUnavailable, health.Status)

	// Recovery phase: past the recovery timeout a probe goes through
	// and closes the circuit.
	backend.setFailing(false)
	time.Sleep(70 * time.Millisecond)

	result, err = ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
	require.NoError(t, err)
	assert.False(t, result.PartialFailure)
	assert.Equal(t, map[string]interface{}{"total_experiments": 7}, result.Value)
	assert.Equal(t, StateClosed, breaker.State())
	assert.True(t, ds.Monitor().IsHealthy("database"))
}

func TestIntegration_MaintenanceWindowShortCircuitsEverything(t *testing.T) {
	resolver, _, statics := NewDefaultFallbackChain(newFakeStaleStore(), nil)
	statics.Register("dashboard_summary", "static value")

	ds := NewDegradationService(DefaultDegradationConfig(), resolver, nil, nil)
	backend := &flakyBackend{}

	ds.EnableMaintenance("Database migration in progress", time.Hour)

	// Maintenance wins over fallbacks: callers get an unavailable
	// error with a retry hint, and the backend is never touched.
	result, err := ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeUnavailable))
	assert.Equal(t, "Database migration in progress", result.Message)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Equal(t, 0, backend.callCount())

	ds.DisableMaintenance()

	result, err = ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, backend.callCount())
}

func TestIntegration_ConcurrentRunsStayConsistent(t *testing.T) {
	resolver, _, statics := NewDefaultFallbackChain(newFakeStaleStore(), nil)
	statics.Register("dashboard_summary", "static value")

	config := DegradationConfig{
		Retry:            fastRetryConfig(0),
		FailureThreshold: 5,
		RecoveryTimeout:  20 * time.Millisecond,
		RetryAfterHint:   time.Second,
	}
	ds := NewDegradationService(config, resolver, nil, nil)
	backend := &flakyBackend{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if n == 0 {
					backend.setFailing(j%2 == 0)
				}
				result, err := ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
				if err == nil && result.PartialFailure {
					assert.Equal(t, "static value", result.Value)
				}
			}
		}(i)
	}
	wg.Wait()

	// Once the backend settles, the service converges back to healthy.
	backend.setFailing(false)
	time.Sleep(30 * time.Millisecond)

	require.Eventually(t, func() bool {
		result, err := ds.Run(context.Background(), "database", "dashboard_summary", nil, backend.fetch)
		return err == nil && !result.PartialFailure
	}, time.Second, 10*time.Millisecond)
}
