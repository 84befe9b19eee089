package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/cache"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

func sampleSummary() *types.DashboardSummary {
	return &types.DashboardSummary{
		TotalExperiments: 4,
		ExperimentsByType: map[string]int{
			types.ExperimentTypeEEG:       3,
			types.ExperimentTypeHeartRate: 1,
		},
		ExperimentsByStatus: map[string]int{
			types.ExperimentStatusCompleted: 4,
		},
		AverageMetrics: map[string]float64{"mean": 42.0},
		LastUpdated:    time.Now().UTC(),
	}
}

func TestDashboardSummary(t *testing.T) {
	env := newTestEnv(t)
	env.repo.summary = sampleSummary()

	w := env.do(t, http.MethodGet, "/api/dashboard/summary", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(4), data["total_experiments"])
}

func TestDashboardSummary_SecondReadServedFromCache(t *testing.T) {
	env := newTestEnv(t)
	env.repo.summary = sampleSummary()

	first := env.do(t, http.MethodGet, "/api/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, first.Code)

	// The repo can disappear entirely; the cache now answers.
	env.repo.fail(errors.NewDatabaseError("select", assert.AnError))

	second := env.do(t, http.MethodGet, "/api/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, second.Code)
	meta := decodeBody(t, second)["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cached"])
}

func TestDashboardSummary_GeneratorFallbackDuringOutage(t *testing.T) {
	env := newTestEnv(t)
	env.repo.fail(errors.NewDatabaseError("select", assert.AnError))

	w := env.do(t, http.MethodGet, "/api/dashboard/summary", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["partial_failure"])
	assert.Equal(t, "generated", meta["fallback_source"])
	assert.InDelta(t, 0.6, meta["confidence"], 0.001)

	// The skeleton payload is well-formed, not null.
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["total_experiments"])
	assert.NotNil(t, data["experiments_by_type"])
}

func TestDashboardSummary_StaleCacheBeatsGenerator(t *testing.T) {
	env := newTestEnv(t)
	env.repo.summary = sampleSummary()

	// Warm, then drop the fresh copies so only the stale shadow remains.
	first := env.do(t, http.MethodGet, "/api/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, first.Code)

	key := cache.DashboardSummaryKeyRaw(env.userID.String())
	require.NoError(t, env.tiered.Delete(context.Background(), key))

	env.remote.seedStale(key, sampleSummary(), 2*time.Minute)
	env.repo.fail(errors.NewDatabaseError("select", assert.AnError))

	w := env.do(t, http.MethodGet, "/api/dashboard/summary", nil)

	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeBody(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, "stale_cache", meta["fallback_source"])
	assert.Equal(t, true, meta["stale"])
}

func TestDashboardCharts(t *testing.T) {
	env := newTestEnv(t)
	env.repo.charts = &types.DashboardCharts{
		Period:           "30d",
		ActivityTimeline: []types.TimelineBucket{{Date: "2026-08-30", Count: 2}},
		GeneratedAt:      time.Now().UTC(),
	}

	w := env.do(t, http.MethodGet, "/api/dashboard/charts", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "30d", data["period"])
}

func TestDashboardCharts_UnsupportedPeriod(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/dashboard/charts?period=365d", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestDashboardCharts_GeneratorKeepsRequestedPeriod(t *testing.T) {
	env := newTestEnv(t)
	env.repo.fail(errors.NewDatabaseError("select", assert.AnError))

	w := env.do(t, http.MethodGet, "/api/dashboard/charts?period=7d", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "7d", data["period"])
}

func TestDashboardRecent(t *testing.T) {
	env := newTestEnv(t)
	env.repo.recent = &types.RecentExperiments{
		Experiments: []types.ExperimentWithResult{},
		FetchedAt:   time.Now().UTC(),
	}

	w := env.do(t, http.MethodGet, "/api/dashboard/recent", nil)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestDashboardRecent_FallbackDuringOutage(t *testing.T) {
	env := newTestEnv(t)
	env.repo.fail(errors.NewDatabaseError("select", assert.AnError))

	w := env.do(t, http.MethodGet, "/api/dashboard/recent", nil)

	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeBody(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["service_degraded"])
	assert.Equal(t, "generated", meta["fallback_source"])
}
