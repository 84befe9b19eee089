//go:build integration
// +build integration

package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/config"
	appErrors "github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/security"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// TestDatabaseIntegration exercises the full repository stack against a
// real Postgres instance.
// Run with: INTEGRATION_TESTS=1 go test -tags=integration ./internal/database
func TestDatabaseIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}

	cfg := testDatabaseConfig()

	db, err := New(cfg)
	require.NoError(t, err, "failed to create database connection")
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Health(ctx), "database health check failed")

	t.Run("Migrations", func(t *testing.T) {
		testMigrations(t, cfg)
	})

	userID := uuid.New()
	t.Cleanup(func() {
		db.Exec("DELETE FROM experiments WHERE user_id = $1", userID)
	})

	repos := NewRepositories(db, security.NewEncryptionService("integration-test-key"))

	t.Run("ExperimentRepository", func(t *testing.T) {
		testExperimentRepository(t, repos, userID)
	})

	t.Run("ResultRepository", func(t *testing.T) {
		testResultRepository(t, repos, userID)
	})

	t.Run("DashboardRepository", func(t *testing.T) {
		testDashboardRepository(t, repos, userID)
	})

	t.Run("Adapter", func(t *testing.T) {
		adapter := NewRepositoryAdapter(db, repos)
		require.NoError(t, adapter.Health(ctx))
	})
}

func testDatabaseConfig() *config.DatabaseConfig {
	port := 5432
	if v := os.Getenv("TEST_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	return &config.DatabaseConfig{
		Host:            getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:            port,
		Name:            getEnvOrDefault("TEST_DB_NAME", "neurolab_test"),
		User:            getEnvOrDefault("TEST_DB_USER", "neurolab"),
		Password:        getEnvOrDefault("TEST_DB_PASSWORD", "neurolab_dev_password"),
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testMigrations(t *testing.T, cfg *config.DatabaseConfig) {
	migrator, err := NewMigrator(cfg, "../../migrations")
	require.NoError(t, err, "failed to create migrator")
	defer migrator.Close()

	require.NoError(t, migrator.Up(), "failed to run migrations")

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.False(t, dirty, "database is in dirty state after migration")
	assert.NotZero(t, version)

	t.Logf("migration version: %d", version)
}

func testExperimentRepository(t *testing.T, repos *Repositories, userID uuid.UUID) {
	ctx := context.Background()

	experiment := &types.Experiment{
		UserID:         userID,
		Name:           "integration heart rate",
		ExperimentType: types.ExperimentTypeHeartRate,
		Parameters:     map[string]interface{}{"duration_seconds": 120.0},
	}

	require.NoError(t, repos.Experiments.Create(ctx, experiment))
	assert.NotEqual(t, uuid.Nil, experiment.ID)
	assert.Equal(t, types.ExperimentStatusPending, experiment.Status)

	fetched, err := repos.Experiments.GetByID(ctx, experiment.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, experiment.Name, fetched.Name)
	assert.Equal(t, experiment.Parameters, fetched.Parameters)

	// Reads are owner-scoped.
	_, err = repos.Experiments.GetByID(ctx, experiment.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeNotFound))

	fetched.Status = types.ExperimentStatusCompleted
	fetched.Name = "integration heart rate (done)"
	require.NoError(t, repos.Experiments.Update(ctx, fetched))

	updated, err := repos.Experiments.GetByID(ctx, experiment.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, types.ExperimentStatusCompleted, updated.Status)

	list, total, err := repos.Experiments.List(ctx, userID, &ExperimentFilter{
		ExperimentType: types.ExperimentTypeHeartRate,
	}, &Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, int64(1))
	assert.NotEmpty(t, list)

	scratch := &types.Experiment{
		UserID:         userID,
		Name:           "to delete",
		ExperimentType: types.ExperimentTypeMemory,
	}
	require.NoError(t, repos.Experiments.Create(ctx, scratch))
	require.NoError(t, repos.Experiments.Delete(ctx, scratch.ID, userID))

	err = repos.Experiments.Delete(ctx, scratch.ID, userID)
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeNotFound))
}

func testResultRepository(t *testing.T, repos *Repositories, userID uuid.UUID) {
	ctx := context.Background()

	experiment := &types.Experiment{
		UserID:         userID,
		Name:           "integration reaction time",
		ExperimentType: types.ExperimentTypeReactionTime,
	}
	require.NoError(t, repos.Experiments.Create(ctx, experiment))

	result := &types.ExperimentResult{
		ExperimentID: experiment.ID,
		DataPoints: []types.DataPoint{
			{Timestamp: time.Now().UTC(), Value: 250.0},
			{Timestamp: time.Now().UTC().Add(time.Second), Value: 240.0},
		},
		Metrics:         types.ResultMetrics{Mean: 245.0, StdDev: 5.0, Min: 240.0, Max: 250.0},
		AnalysisSummary: "two trials",
	}
	require.NoError(t, repos.Results.Create(ctx, result))

	// The sealed payload must decrypt back to the original samples.
	fetched, err := repos.Results.GetByID(ctx, result.ID)
	require.NoError(t, err)
	require.Len(t, fetched.DataPoints, 2)
	assert.Equal(t, 250.0, fetched.DataPoints[0].Value)
	assert.Equal(t, result.Metrics, fetched.Metrics)

	batch := []*types.ExperimentResult{
		{ExperimentID: experiment.ID, Metrics: types.ResultMetrics{Mean: 300.0}},
		{ExperimentID: experiment.ID, Metrics: types.ResultMetrics{Mean: 280.0}},
	}
	require.NoError(t, repos.Results.CreateBatch(ctx, batch))

	all, err := repos.Results.ListByExperiment(ctx, experiment.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err := repos.Results.Latest(ctx, experiment.ID)
	require.NoError(t, err)
	assert.NotNil(t, latest)

	// FK violations surface as not-found, not as a retryable database error.
	err = repos.Results.Create(ctx, &types.ExperimentResult{ExperimentID: uuid.New()})
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeNotFound))

	// Cascade removes results with the experiment.
	require.NoError(t, repos.Experiments.Delete(ctx, experiment.ID, userID))
	remaining, err := repos.Results.ListByExperiment(ctx, experiment.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func testDashboardRepository(t *testing.T, repos *Repositories, userID uuid.UUID) {
	ctx := context.Background()

	experiment := &types.Experiment{
		UserID:         userID,
		Name:           "integration eeg",
		ExperimentType: types.ExperimentTypeEEG,
		Status:         types.ExperimentStatusCompleted,
	}
	require.NoError(t, repos.Experiments.Create(ctx, experiment))
	require.NoError(t, repos.Results.Create(ctx, &types.ExperimentResult{
		ExperimentID: experiment.ID,
		Metrics:      types.ResultMetrics{Mean: 12.5},
	}))

	summary, err := repos.Dashboard.Summary(ctx, userID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.TotalExperiments, 1)
	assert.GreaterOrEqual(t, summary.ExperimentsByType[types.ExperimentTypeEEG], 1)
	assert.GreaterOrEqual(t, summary.RecentActivity.LastSevenDays, 1)
	assert.Contains(t, summary.AverageMetrics, types.ExperimentTypeEEG)

	charts, err := repos.Dashboard.Charts(ctx, userID, 30)
	require.NoError(t, err)
	assert.Equal(t, "30d", charts.Period)
	assert.NotEmpty(t, charts.ActivityTimeline)
	assert.NotEmpty(t, charts.TypeDistribution)

	recent, err := repos.Dashboard.Recent(ctx, userID, 10, 7)
	require.NoError(t, err)
	require.NotEmpty(t, recent.Experiments)
	assert.Contains(t, recent.Insights, "most_common_type")

	var withResult *types.ExperimentResult
	for _, e := range recent.Experiments {
		if e.ID == experiment.ID {
			withResult = e.LatestResult
		}
	}
	require.NotNil(t, withResult)
	assert.Equal(t, 12.5, withResult.Metrics.Mean)
	// The feed intentionally omits raw samples.
	assert.Nil(t, withResult.DataPoints)
}
