package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/auth"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/cache"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/database"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/resilience"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// Resource names used for breaker and health-tracking registration.
const (
	ResourceDatabase = "database"
)

// Data types resolved through the fallback chain.
const (
	DataTypeExperimentList   = "experiment_list"
	DataTypeExperiment       = "experiment"
	DataTypeDashboardSummary = "dashboard_summary"
	DataTypeDashboardCharts  = "dashboard_charts"
	DataTypeRecentActivity   = "recent_experiments"
)

// ExperimentHandler serves the experiment CRUD surface. Reads go
// through the degradation service so list and detail endpoints keep
// answering during partial database outages; writes fail hard.
type ExperimentHandler struct {
	repo     database.Repository
	cache    *cache.TieredCache
	guard    *resilience.DegradationService
	logger   *logging.Logger
	writeTTL time.Duration
}

// NewExperimentHandler creates the experiment handler.
func NewExperimentHandler(repo database.Repository, tiered *cache.TieredCache, guard *resilience.DegradationService) *ExperimentHandler {
	return &ExperimentHandler{
		repo:     repo,
		cache:    tiered,
		guard:    guard,
		logger:   logging.GetLogger(),
		writeTTL: 5 * time.Minute,
	}
}

// CreateExperimentRequest is the POST /api/experiments payload.
type CreateExperimentRequest struct {
	Name           string                 `json:"name" binding:"required,min=1,max=255"`
	ExperimentType string                 `json:"experiment_type" binding:"required"`
	Parameters     map[string]interface{} `json:"parameters"`
}

// UpdateExperimentRequest is the PUT /api/experiments/:id payload.
// Omitted fields keep their current values.
type UpdateExperimentRequest struct {
	Name       string                 `json:"name" binding:"omitempty,min=1,max=255"`
	Status     string                 `json:"status"`
	Parameters map[string]interface{} `json:"parameters"`
}

// CreateResultRequest is the POST /api/experiments/:id/results payload.
type CreateResultRequest struct {
	DataPoints      []types.DataPoint   `json:"data_points" binding:"required,min=1"`
	Metrics         types.ResultMetrics `json:"metrics"`
	AnalysisSummary string              `json:"analysis_summary"`
}

// ListExperiments handles GET /api/experiments.
func (h *ExperimentHandler) ListExperiments(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	filter := &database.ExperimentFilter{
		ExperimentType: c.Query("experiment_type"),
		Status:         c.Query("status"),
	}
	if filter.ExperimentType != "" && !types.ValidExperimentType(filter.ExperimentType) {
		BadRequestResponse(c, "unknown experiment_type")
		return
	}
	if filter.Status != "" && !types.ValidExperimentStatus(filter.Status) {
		BadRequestResponse(c, "unknown status")
		return
	}

	pagination := &database.Pagination{
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "page_size", 20),
	}
	pagination.Normalize()

	type listPage struct {
		Experiments []*types.Experiment `json:"experiments"`
		Total       int64               `json:"total"`
	}

	cacheKey := cache.ExperimentListKeyRaw(userID.String(), pagination.Page, pagination.PageSize)
	unfiltered := filter.ExperimentType == "" && filter.Status == ""

	// Only the unfiltered first pages are cached; filtered queries are
	// too sparse to be worth the invalidation traffic.
	if unfiltered {
		if value, ok := h.cache.Get(c.Request.Context(), cacheKey); ok {
			var page listPage
			if err := cache.Coerce(value, &page); err == nil {
				PaginatedResponse(c, page.Experiments, pagination.Page, pagination.PageSize, page.Total, CachedMeta())
				return
			}
		}
	}

	fctx := resilience.FallbackContext{"cache_key": cacheKey, "user_id": userID.String()}
	result, err := h.guard.Run(c.Request.Context(), ResourceDatabase, DataTypeExperimentList, fctx, func(ctx context.Context) (interface{}, error) {
		experiments, total, err := h.repo.ListExperiments(ctx, userID, filter, pagination)
		if err != nil {
			return nil, err
		}
		return &listPage{Experiments: experiments, Total: total}, nil
	})
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	if page, ok := result.Value.(*listPage); ok {
		if unfiltered && !result.PartialFailure {
			if cacheErr := h.cache.Set(c.Request.Context(), cacheKey, page, h.writeTTL); cacheErr != nil {
				h.logger.Warn("experiment list cache write failed", "error", cacheErr.Error())
			}
		}
		PaginatedResponse(c, page.Experiments, pagination.Page, pagination.PageSize, page.Total, MetaFromResult(result))
		return
	}

	// A fallback source produced the page in its serialized form.
	SuccessResponseWithMeta(c, result.Value, MetaFromResult(result))
}

// GetExperiment handles GET /api/experiments/:id.
func (h *ExperimentHandler) GetExperiment(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid experiment id")
		return
	}

	cacheKey := cache.ExperimentKeyRaw(id.String())
	if value, ok := h.cache.Get(c.Request.Context(), cacheKey); ok {
		var experiment types.Experiment
		if err := cache.Coerce(value, &experiment); err == nil && experiment.UserID == userID {
			SuccessResponseWithMeta(c, &experiment, CachedMeta())
			return
		}
	}

	fctx := resilience.FallbackContext{"cache_key": cacheKey, "user_id": userID.String()}
	result, err := h.guard.Run(c.Request.Context(), ResourceDatabase, DataTypeExperiment, fctx, func(ctx context.Context) (interface{}, error) {
		return h.repo.GetExperiment(ctx, id, userID)
	})
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	// The experiment cache key is not user-scoped, so a fallback value
	// must re-prove ownership before it leaves the process.
	if result.PartialFailure {
		var experiment types.Experiment
		if err := cache.Coerce(result.Value, &experiment); err != nil || experiment.UserID != userID {
			NotFoundResponse(c, "experiment not found")
			return
		}
		SuccessResponseWithMeta(c, &experiment, MetaFromResult(result))
		return
	}

	if experiment, ok := result.Value.(*types.Experiment); ok {
		if cacheErr := h.cache.Set(c.Request.Context(), cacheKey, experiment, h.writeTTL); cacheErr != nil {
			h.logger.Warn("experiment cache write failed", "error", cacheErr.Error())
		}
	}
	SuccessResponseWithMeta(c, result.Value, MetaFromResult(result))
}

// CreateExperiment handles POST /api/experiments.
func (h *ExperimentHandler) CreateExperiment(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	var req CreateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}
	if !types.ValidExperimentType(req.ExperimentType) {
		ValidationErrorResponse(c, "unknown experiment type", map[string]interface{}{
			"experiment_type": req.ExperimentType,
		})
		return
	}

	experiment := &types.Experiment{
		UserID:         userID,
		Name:           req.Name,
		ExperimentType: req.ExperimentType,
		Status:         types.ExperimentStatusPending,
		Parameters:     req.Parameters,
	}

	if err := h.repo.CreateExperiment(c.Request.Context(), experiment); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	h.invalidateUser(c.Request.Context(), userID)
	CreatedResponse(c, experiment)
}

// UpdateExperiment handles PUT /api/experiments/:id.
func (h *ExperimentHandler) UpdateExperiment(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid experiment id")
		return
	}

	var req UpdateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}
	if req.Status != "" && !types.ValidExperimentStatus(req.Status) {
		ValidationErrorResponse(c, "unknown experiment status", map[string]interface{}{
			"status": req.Status,
		})
		return
	}

	experiment, err := h.repo.GetExperiment(c.Request.Context(), id, userID)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if req.Name != "" {
		experiment.Name = req.Name
	}
	if req.Status != "" {
		experiment.Status = req.Status
	}
	if req.Parameters != nil {
		experiment.Parameters = req.Parameters
	}

	if err := h.repo.UpdateExperiment(c.Request.Context(), experiment); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	h.invalidateUser(c.Request.Context(), userID)
	h.invalidateExperiment(c.Request.Context(), id)
	SuccessResponse(c, experiment)
}

// DeleteExperiment handles DELETE /api/experiments/:id.
func (h *ExperimentHandler) DeleteExperiment(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid experiment id")
		return
	}

	if err := h.repo.DeleteExperiment(c.Request.Context(), id, userID); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	h.invalidateUser(c.Request.Context(), userID)
	h.invalidateExperiment(c.Request.Context(), id)
	NoContentResponse(c)
}

// CreateResult handles POST /api/experiments/:id/results.
func (h *ExperimentHandler) CreateResult(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid experiment id")
		return
	}

	var req CreateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "invalid request body: "+err.Error())
		return
	}

	// Ownership check before the insert; the results table itself is
	// not user-scoped.
	if _, err := h.repo.GetExperiment(c.Request.Context(), id, userID); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	result := &types.ExperimentResult{
		ExperimentID:    id,
		DataPoints:      req.DataPoints,
		Metrics:         req.Metrics,
		AnalysisSummary: req.AnalysisSummary,
	}

	if err := h.repo.CreateResult(c.Request.Context(), result); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	h.invalidateUser(c.Request.Context(), userID)
	h.invalidateExperiment(c.Request.Context(), id)
	CreatedResponse(c, result)
}

// ListResults handles GET /api/experiments/:id/results.
func (h *ExperimentHandler) ListResults(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "invalid experiment id")
		return
	}

	if _, err := h.repo.GetExperiment(c.Request.Context(), id, userID); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	results, err := h.repo.ListResults(c.Request.Context(), id)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, results)
}

func (h *ExperimentHandler) respondError(c *gin.Context, err error, result *resilience.OperationResult) {
	if errors.IsType(err, errors.ErrorTypeUnavailable) {
		UnavailableResponse(c, err, result)
		return
	}
	ErrorResponseFromError(c, err)
}

func (h *ExperimentHandler) invalidateUser(ctx context.Context, userID uuid.UUID) {
	for _, pattern := range cache.UserInvalidationPatterns(userID.String()) {
		if _, err := h.cache.ClearPattern(ctx, pattern); err != nil {
			h.logger.Warn("cache invalidation failed", "pattern", pattern, "error", err.Error())
		}
	}
}

func (h *ExperimentHandler) invalidateExperiment(ctx context.Context, id uuid.UUID) {
	for _, pattern := range cache.ExperimentInvalidationPatterns(id.String()) {
		if _, err := h.cache.ClearPattern(ctx, pattern); err != nil {
			h.logger.Warn("cache invalidation failed", "pattern", pattern, "error", err.Error())
		}
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	value := c.Query(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
