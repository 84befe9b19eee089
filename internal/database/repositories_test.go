package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/security"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

func TestExperimentRepository_CreateValidation(t *testing.T) {
	// Validation fires before any query, so a zero DB handle is safe here.
	repo := NewExperimentRepository(&DB{})
	ctx := context.Background()

	tests := []struct {
		name       string
		experiment *types.Experiment
	}{
		{
			name: "missing user id",
			experiment: &types.Experiment{
				Name:           "morning session",
				ExperimentType: types.ExperimentTypeHeartRate,
			},
		},
		{
			name: "missing name",
			experiment: &types.Experiment{
				UserID:         uuid.New(),
				ExperimentType: types.ExperimentTypeHeartRate,
			},
		},
		{
			name: "unknown experiment type",
			experiment: &types.Experiment{
				UserID:         uuid.New(),
				Name:           "morning session",
				ExperimentType: "polygraph",
			},
		},
		{
			name: "unknown status",
			experiment: &types.Experiment{
				UserID:         uuid.New(),
				Name:           "morning session",
				ExperimentType: types.ExperimentTypeHeartRate,
				Status:         "paused",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.experiment)
			require.Error(t, err)
			assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
		})
	}
}

func TestExperimentRepository_UpdateValidation(t *testing.T) {
	repo := NewExperimentRepository(&DB{})
	ctx := context.Background()

	err := repo.Update(ctx, &types.Experiment{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Status: types.ExperimentStatusRunning,
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))

	err = repo.Update(ctx, &types.Experiment{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Name:   "renamed",
		Status: "archived",
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
}

func TestResultRepository_CreateValidation(t *testing.T) {
	repo := NewResultRepository(&DB{}, nil)
	ctx := context.Background()

	err := repo.Create(ctx, &types.ExperimentResult{})
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))

	err = repo.CreateBatch(ctx, []*types.ExperimentResult{{}})
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
}

func TestResultRepository_CreateBatchEmpty(t *testing.T) {
	repo := NewResultRepository(&DB{}, nil)
	assert.NoError(t, repo.CreateBatch(context.Background(), nil))
}

func TestExperimentRowRoundTrip(t *testing.T) {
	experiment := &types.Experiment{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Name:           "reaction time baseline",
		ExperimentType: types.ExperimentTypeReactionTime,
		Status:         types.ExperimentStatusCompleted,
		Parameters: map[string]interface{}{
			"duration_seconds": 300.0,
			"trials":           40.0,
			"stimulus":         "visual",
		},
		CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC),
	}

	row, err := newExperimentRow(experiment)
	require.NoError(t, err)

	decoded, err := row.toExperiment()
	require.NoError(t, err)

	assert.Equal(t, experiment.ID, decoded.ID)
	assert.Equal(t, experiment.UserID, decoded.UserID)
	assert.Equal(t, experiment.Name, decoded.Name)
	assert.Equal(t, experiment.ExperimentType, decoded.ExperimentType)
	assert.Equal(t, experiment.Status, decoded.Status)
	assert.Equal(t, experiment.Parameters, decoded.Parameters)
	assert.True(t, experiment.CreatedAt.Equal(decoded.CreatedAt))
}

func TestExperimentRowNilParameters(t *testing.T) {
	experiment := &types.Experiment{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Name:           "eeg resting state",
		ExperimentType: types.ExperimentTypeEEG,
		Status:         types.ExperimentStatusPending,
	}

	row, err := newExperimentRow(experiment)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(row.Parameters))

	decoded, err := row.toExperiment()
	require.NoError(t, err)
	assert.Empty(t, decoded.Parameters)
}

func TestDataPointsPlaintextRoundTrip(t *testing.T) {
	points := []types.DataPoint{
		{
			Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			Value:     72.5,
			Metadata:  map[string]interface{}{"channel": "fp1", "quality": 0.98},
		},
		{
			Timestamp: time.Date(2025, 6, 1, 10, 0, 1, 0, time.UTC),
			Value:     73.1,
		},
	}

	encoded, err := encodeDataPoints(nil, points)
	require.NoError(t, err)

	// Plaintext payloads stay a plain JSON array.
	var asArray []types.DataPoint
	require.NoError(t, json.Unmarshal(encoded, &asArray))

	decoded, err := decodeDataPoints(nil, encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, points[0].Timestamp.Equal(decoded[0].Timestamp))
	assert.Equal(t, points[0].Value, decoded[0].Value)
	assert.Equal(t, points[0].Metadata, decoded[0].Metadata)
	assert.Equal(t, points[1].Value, decoded[1].Value)
	assert.Nil(t, decoded[1].Metadata)
}

func TestDataPointsSealedRoundTrip(t *testing.T) {
	crypto := security.NewEncryptionService("unit-test-key")
	points := []types.DataPoint{
		{Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Value: 412.0},
	}

	encoded, err := encodeDataPoints(crypto, points)
	require.NoError(t, err)

	var sealed sealedPayload
	require.NoError(t, json.Unmarshal(encoded, &sealed))
	assert.NotEmpty(t, sealed.Ciphertext)

	decoded, err := decodeDataPoints(crypto, encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, 412.0, decoded[0].Value)
}

func TestDecodeDataPointsSealedWithoutKey(t *testing.T) {
	crypto := security.NewEncryptionService("unit-test-key")
	encoded, err := encodeDataPoints(crypto, []types.DataPoint{{Value: 1}})
	require.NoError(t, err)

	_, err = decodeDataPoints(nil, encoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted")
}

func TestDecodeDataPointsSealedWrongKey(t *testing.T) {
	crypto := security.NewEncryptionService("unit-test-key")
	encoded, err := encodeDataPoints(crypto, []types.DataPoint{{Value: 1}})
	require.NoError(t, err)

	other := security.NewEncryptionService("another-key")
	_, err = decodeDataPoints(other, encoded)
	require.Error(t, err)
}

func TestDecodeDataPointsEmpty(t *testing.T) {
	decoded, err := decodeDataPoints(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestResultRowRoundTrip(t *testing.T) {
	repo := NewResultRepository(&DB{}, nil)

	result := &types.ExperimentResult{
		ID:           uuid.New(),
		ExperimentID: uuid.New(),
		DataPoints: []types.DataPoint{
			{Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Value: 250.0},
			{Timestamp: time.Date(2025, 6, 1, 10, 0, 2, 0, time.UTC), Value: 245.0},
		},
		Metrics:         types.ResultMetrics{Mean: 247.5, StdDev: 2.5, Min: 245.0, Max: 250.0},
		AnalysisSummary: "within normal range",
		CreatedAt:       time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC),
	}

	row, err := repo.newResultRow(result)
	require.NoError(t, err)

	decoded, err := row.toResult(nil)
	require.NoError(t, err)

	assert.Equal(t, result.ID, decoded.ID)
	assert.Equal(t, result.ExperimentID, decoded.ExperimentID)
	assert.Equal(t, result.Metrics, decoded.Metrics)
	assert.Equal(t, result.AnalysisSummary, decoded.AnalysisSummary)
	require.Len(t, decoded.DataPoints, 2)
	assert.Equal(t, 250.0, decoded.DataPoints[0].Value)
}

func TestBuildInsightsEmpty(t *testing.T) {
	insights := buildInsights(nil)

	assert.Equal(t, 0, insights["total_in_window"])
	assert.Equal(t, 0.0, insights["completion_rate"])
	_, hasType := insights["most_common_type"]
	assert.False(t, hasType)
}

func TestBuildInsights(t *testing.T) {
	experiments := []types.ExperimentWithResult{
		{
			Experiment: types.Experiment{
				ExperimentType: types.ExperimentTypeHeartRate,
				Status:         types.ExperimentStatusCompleted,
			},
			LatestResult: &types.ExperimentResult{Metrics: types.ResultMetrics{Mean: 70.0}},
		},
		{
			Experiment: types.Experiment{
				ExperimentType: types.ExperimentTypeHeartRate,
				Status:         types.ExperimentStatusCompleted,
			},
			LatestResult: &types.ExperimentResult{Metrics: types.ResultMetrics{Mean: 80.0}},
		},
		{
			Experiment: types.Experiment{
				ExperimentType: types.ExperimentTypeMemory,
				Status:         types.ExperimentStatusRunning,
			},
		},
	}

	insights := buildInsights(experiments)

	assert.Equal(t, 3, insights["total_in_window"])
	assert.InDelta(t, 2.0/3.0, insights["completion_rate"], 0.0001)
	assert.Equal(t, types.ExperimentTypeHeartRate, insights["most_common_type"])
	assert.InDelta(t, 75.0, insights["average_mean"], 0.0001)
}

func TestBuildInsightsTieBreaksAlphabetically(t *testing.T) {
	experiments := []types.ExperimentWithResult{
		{Experiment: types.Experiment{ExperimentType: types.ExperimentTypeMemory}},
		{Experiment: types.Experiment{ExperimentType: types.ExperimentTypeEEG}},
	}

	insights := buildInsights(experiments)
	assert.Equal(t, types.ExperimentTypeEEG, insights["most_common_type"])
}

func TestPaginationNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       Pagination
		wantPage int
		wantSize int
	}{
		{"zero values", Pagination{}, 1, 20},
		{"negative page", Pagination{Page: -2, PageSize: 10}, 1, 10},
		{"oversized page size", Pagination{Page: 3, PageSize: 500}, 3, 100},
		{"already sane", Pagination{Page: 2, PageSize: 25}, 2, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Normalize()
			assert.Equal(t, tt.wantPage, tt.in.Page)
			assert.Equal(t, tt.wantSize, tt.in.PageSize)
		})
	}
}
