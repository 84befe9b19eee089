package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// Repository is the data-access surface the API layer depends on. Handlers
// hold this interface rather than the concrete repositories so tests can
// substitute in-memory fakes.
type Repository interface {
	// Health checks database connectivity
	Health(ctx context.Context) error

	// Experiment operations
	CreateExperiment(ctx context.Context, experiment *types.Experiment) error
	GetExperiment(ctx context.Context, id, userID uuid.UUID) (*types.Experiment, error)
	UpdateExperiment(ctx context.Context, experiment *types.Experiment) error
	DeleteExperiment(ctx context.Context, id, userID uuid.UUID) error
	ListExperiments(ctx context.Context, userID uuid.UUID, filter *ExperimentFilter, pagination *Pagination) ([]*types.Experiment, int64, error)

	// Result operations
	CreateResult(ctx context.Context, result *types.ExperimentResult) error
	CreateResults(ctx context.Context, results []*types.ExperimentResult) error
	GetResult(ctx context.Context, id uuid.UUID) (*types.ExperimentResult, error)
	ListResults(ctx context.Context, experimentID uuid.UUID) ([]*types.ExperimentResult, error)
	LatestResult(ctx context.Context, experimentID uuid.UUID) (*types.ExperimentResult, error)

	// Dashboard aggregations
	DashboardSummary(ctx context.Context, userID uuid.UUID) (*types.DashboardSummary, error)
	DashboardCharts(ctx context.Context, userID uuid.UUID, days int) (*types.DashboardCharts, error)
	RecentExperiments(ctx context.Context, userID uuid.UUID, limit, days int) (*types.RecentExperiments, error)
}

// ExperimentFilter narrows experiment list queries.
type ExperimentFilter struct {
	ExperimentType string    `json:"experiment_type,omitempty"`
	Status         string    `json:"status,omitempty"`
	Since          time.Time `json:"since,omitempty"`
	Until          time.Time `json:"until,omitempty"`
}

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps pagination to sane bounds.
func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}
