package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/cache"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/database"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/resilience"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// fakeRepo is an in-memory Repository with per-call error injection.
type fakeRepo struct {
	mu          sync.Mutex
	experiments map[uuid.UUID]*types.Experiment
	results     map[uuid.UUID][]*types.ExperimentResult

	// failWith makes every data operation fail until cleared.
	failWith error

	summary *types.DashboardSummary
	charts  *types.DashboardCharts
	recent  *types.RecentExperiments

	listCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		experiments: make(map[uuid.UUID]*types.Experiment),
		results:     make(map[uuid.UUID][]*types.ExperimentResult),
	}
}

func (r *fakeRepo) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *fakeRepo) Health(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failWith
}

func (r *fakeRepo) CreateExperiment(ctx context.Context, experiment *types.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	if experiment.ID == uuid.Nil {
		experiment.ID = uuid.New()
	}
	experiment.CreatedAt = time.Now().UTC()
	experiment.UpdatedAt = experiment.CreatedAt
	r.experiments[experiment.ID] = experiment
	return nil
}

func (r *fakeRepo) GetExperiment(ctx context.Context, id, userID uuid.UUID) (*types.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	experiment, ok := r.experiments[id]
	if !ok || experiment.UserID != userID {
		return nil, errors.NewNotFoundError("experiment")
	}
	return experiment, nil
}

func (r *fakeRepo) UpdateExperiment(ctx context.Context, experiment *types.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.experiments[experiment.ID]; !ok {
		return errors.NewNotFoundError("experiment")
	}
	experiment.UpdatedAt = time.Now().UTC()
	r.experiments[experiment.ID] = experiment
	return nil
}

func (r *fakeRepo) DeleteExperiment(ctx context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	experiment, ok := r.experiments[id]
	if !ok || experiment.UserID != userID {
		return errors.NewNotFoundError("experiment")
	}
	delete(r.experiments, id)
	delete(r.results, id)
	return nil
}

func (r *fakeRepo) ListExperiments(ctx context.Context, userID uuid.UUID, filter *database.ExperimentFilter, pagination *database.Pagination) ([]*types.Experiment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.failWith != nil {
		return nil, 0, r.failWith
	}

	var matched []*types.Experiment
	for _, experiment := range r.experiments {
		if experiment.UserID != userID {
			continue
		}
		if filter != nil && filter.ExperimentType != "" && experiment.ExperimentType != filter.ExperimentType {
			continue
		}
		if filter != nil && filter.Status != "" && experiment.Status != filter.Status {
			continue
		}
		matched = append(matched, experiment)
	}

	total := int64(len(matched))
	start := (pagination.Page - 1) * pagination.PageSize
	if start >= len(matched) {
		return []*types.Experiment{}, total, nil
	}
	end := start + pagination.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeRepo) CreateResult(ctx context.Context, result *types.ExperimentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.CreatedAt = time.Now().UTC()
	r.results[result.ExperimentID] = append(r.results[result.ExperimentID], result)
	return nil
}

func (r *fakeRepo) CreateResults(ctx context.Context, results []*types.ExperimentResult) error {
	for _, result := range results {
		if err := r.CreateResult(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRepo) GetResult(ctx context.Context, id uuid.UUID) (*types.ExperimentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, results := range r.results {
		for _, result := range results {
			if result.ID == id {
				return result, nil
			}
		}
	}
	return nil, errors.NewNotFoundError("experiment result")
}

func (r *fakeRepo) ListResults(ctx context.Context, experimentID uuid.UUID) ([]*types.ExperimentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	return r.results[experimentID], nil
}

func (r *fakeRepo) LatestResult(ctx context.Context, experimentID uuid.UUID) (*types.ExperimentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	results := r.results[experimentID]
	if len(results) == 0 {
		return nil, errors.NewNotFoundError("experiment result")
	}
	return results[len(results)-1], nil
}

func (r *fakeRepo) DashboardSummary(ctx context.Context, userID uuid.UUID) (*types.DashboardSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	if r.summary == nil {
		return nil, errors.NewNotFoundError("summary")
	}
	return r.summary, nil
}

func (r *fakeRepo) DashboardCharts(ctx context.Context, userID uuid.UUID, days int) (*types.DashboardCharts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	if r.charts == nil {
		return nil, errors.NewNotFoundError("charts")
	}
	return r.charts, nil
}

func (r *fakeRepo) RecentExperiments(ctx context.Context, userID uuid.UUID, limit, days int) (*types.RecentExperiments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	if r.recent == nil {
		return nil, errors.NewNotFoundError("recent experiments")
	}
	return r.recent, nil
}

// memRemote is an in-memory cache.RemoteStore so the tiered cache runs
// without Redis.
type memRemote struct {
	mu     sync.Mutex
	values map[string]interface{}
	stale  map[string]*cache.StaleValue
}

func newMemRemote() *memRemote {
	return &memRemote{
		values: make(map[string]interface{}),
		stale:  make(map[string]*cache.StaleValue),
	}
}

// seedStale plants a stale shadow only, as if the primaries had expired.
func (m *memRemote) seedStale(key string, value interface{}, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale[key] = &cache.StaleValue{Value: value, CreatedAt: time.Now().Add(-age)}
}

func (m *memRemote) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.stale[key] = &cache.StaleValue{Value: value, CreatedAt: time.Now()}
	return nil
}

func (m *memRemote) Get(ctx context.Context, key string) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return nil, errors.NewNotFoundError("cache key")
	}
	return value, nil
}

func (m *memRemote) GetStale(ctx context.Context, key string) (*cache.StaleValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stale, ok := m.stale[key]
	if !ok {
		return nil, errors.NewNotFoundError("stale cache key")
	}
	return stale, nil
}

func (m *memRemote) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.stale, key)
	return nil
}

func (m *memRemote) DeletePattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.values {
		if cache.MatchPattern(key, pattern) {
			delete(m.values, key)
			delete(m.stale, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memRemote) Ping(ctx context.Context) error {
	return nil
}

func (m *memRemote) Stats(ctx context.Context) (cache.SharedStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cache.SharedStats{Connected: true, Keys: int64(len(m.values))}, nil
}

// testEnv wires a full handler stack over in-memory backends.
type testEnv struct {
	repo       *fakeRepo
	remote     *memRemote
	tiered     *cache.TieredCache
	dashboards *cache.DashboardCache
	guard      *resilience.DegradationService
	generators *resilience.GeneratorSource
	statics    *resilience.StaticSource
	userID     uuid.UUID
	router     *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newFakeRepo()
	remote := newMemRemote()
	local := cache.NewLocalCache(&cache.LocalConfig{
		MaxSize:         100,
		CleanupInterval: time.Minute,
		TTLCeiling:      time.Minute,
	})
	tiered := cache.NewTieredCache(local, remote, nil, nil, nil)
	t.Cleanup(tiered.Stop)

	fallbacks, generators, statics := resilience.NewDefaultFallbackChain(TieredStaleStore{Cache: tiered}, nil)

	guard := resilience.NewDegradationService(resilience.DegradationConfig{
		Retry: resilience.RetryConfig{
			MaxRetries:        1,
			BaseDelay:         time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		RetryAfterHint:   30 * time.Second,
	}, fallbacks, nil, nil)

	env := &testEnv{
		repo:       repo,
		remote:     remote,
		tiered:     tiered,
		dashboards: cache.NewDashboardCache(tiered),
		guard:      guard,
		generators: generators,
		statics:    statics,
		userID:     uuid.New(),
	}

	experiments := NewExperimentHandler(repo, tiered, guard)
	dashboard := NewDashboardHandler(repo, env.dashboards, guard, nil, nil, generators, statics)
	system := NewSystemHandler(guard, tiered, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", env.userID)
		c.Next()
	})

	api := router.Group("/api")
	{
		api.GET("/experiments", experiments.ListExperiments)
		api.POST("/experiments", experiments.CreateExperiment)
		api.GET("/experiments/:id", experiments.GetExperiment)
		api.PUT("/experiments/:id", experiments.UpdateExperiment)
		api.DELETE("/experiments/:id", experiments.DeleteExperiment)
		api.POST("/experiments/:id/results", experiments.CreateResult)
		api.GET("/experiments/:id/results", experiments.ListResults)

		api.GET("/dashboard/summary", dashboard.Summary)
		api.GET("/dashboard/charts", dashboard.Charts)
		api.GET("/dashboard/recent", dashboard.Recent)

		api.GET("/system/status", system.Status)
		api.POST("/system/maintenance", system.EnableMaintenance)
		api.DELETE("/system/maintenance", system.DisableMaintenance)
		api.GET("/system/cache/stats", system.CacheStats)
		api.POST("/system/cache/clear", system.ClearCache)
	}

	env.router = router
	return env
}

// seedExperiment inserts an experiment owned by the env user.
func (env *testEnv) seedExperiment(t *testing.T, name, experimentType string) *types.Experiment {
	t.Helper()
	experiment := &types.Experiment{
		UserID:         env.userID,
		Name:           name,
		ExperimentType: experimentType,
		Status:         types.ExperimentStatusPending,
	}
	require.NoError(t, env.repo.CreateExperiment(context.Background(), experiment))
	return experiment
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// decodeMeta pulls the raw meta block out of a response body since
// APIResponse.Data/Meta decode as generic maps.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
