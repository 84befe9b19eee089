package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// RepositoryAdapter exposes the Repositories set through the Repository interface.
type RepositoryAdapter struct {
	db    *DB
	repos *Repositories
}

// NewRepositoryAdapter creates a new repository adapter
func NewRepositoryAdapter(db *DB, repos *Repositories) Repository {
	return &RepositoryAdapter{
		db:    db,
		repos: repos,
	}
}

// Health checks database connectivity
func (r *RepositoryAdapter) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Experiment operations

func (r *RepositoryAdapter) CreateExperiment(ctx context.Context, experiment *types.Experiment) error {
	return r.repos.Experiments.Create(ctx, experiment)
}

func (r *RepositoryAdapter) GetExperiment(ctx context.Context, id, userID uuid.UUID) (*types.Experiment, error) {
	return r.repos.Experiments.GetByID(ctx, id, userID)
}

func (r *RepositoryAdapter) UpdateExperiment(ctx context.Context, experiment *types.Experiment) error {
	return r.repos.Experiments.Update(ctx, experiment)
}

func (r *RepositoryAdapter) DeleteExperiment(ctx context.Context, id, userID uuid.UUID) error {
	return r.repos.Experiments.Delete(ctx, id, userID)
}

func (r *RepositoryAdapter) ListExperiments(ctx context.Context, userID uuid.UUID, filter *ExperimentFilter, pagination *Pagination) ([]*types.Experiment, int64, error) {
	return r.repos.Experiments.List(ctx, userID, filter, pagination)
}

// Result operations

func (r *RepositoryAdapter) CreateResult(ctx context.Context, result *types.ExperimentResult) error {
	return r.repos.Results.Create(ctx, result)
}

func (r *RepositoryAdapter) CreateResults(ctx context.Context, results []*types.ExperimentResult) error {
	return r.repos.Results.CreateBatch(ctx, results)
}

func (r *RepositoryAdapter) GetResult(ctx context.Context, id uuid.UUID) (*types.ExperimentResult, error) {
	return r.repos.Results.GetByID(ctx, id)
}

func (r *RepositoryAdapter) ListResults(ctx context.Context, experimentID uuid.UUID) ([]*types.ExperimentResult, error) {
	return r.repos.Results.ListByExperiment(ctx, experimentID)
}

func (r *RepositoryAdapter) LatestResult(ctx context.Context, experimentID uuid.UUID) (*types.ExperimentResult, error) {
	return r.repos.Results.Latest(ctx, experimentID)
}

// Dashboard aggregations

func (r *RepositoryAdapter) DashboardSummary(ctx context.Context, userID uuid.UUID) (*types.DashboardSummary, error) {
	return r.repos.Dashboard.Summary(ctx, userID)
}

func (r *RepositoryAdapter) DashboardCharts(ctx context.Context, userID uuid.UUID, days int) (*types.DashboardCharts, error) {
	return r.repos.Dashboard.Charts(ctx, userID, days)
}

func (r *RepositoryAdapter) RecentExperiments(ctx context.Context, userID uuid.UUID, limit, days int) (*types.RecentExperiments, error) {
	return r.repos.Dashboard.Recent(ctx, userID, limit, days)
}
