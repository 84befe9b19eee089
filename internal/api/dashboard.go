package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/auth"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/cache"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/database"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/export"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/resilience"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/security"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// Chart period defaults. The recent feed caps its limit so one request
// cannot fan out into an unbounded join.
const (
	DefaultChartPeriod  = "30d"
	DefaultRecentLimit  = 10
	MaxRecentLimit      = 50
	DefaultRecentWindow = 7
)

var chartPeriods = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// DashboardHandler serves the aggregate read endpoints. All three are
// cache-first and run through the degradation service, so a database
// outage downgrades them to stale or skeleton payloads instead of 500s.
type DashboardHandler struct {
	repo   database.Repository
	cache  *cache.DashboardCache
	guard  *resilience.DegradationService
	export *export.Service
	audit  *security.AuditLogger
	logger *logging.Logger
}

// NewDashboardHandler creates the dashboard handler and registers the
// skeleton fallbacks for each dashboard data type.
func NewDashboardHandler(repo database.Repository, dc *cache.DashboardCache, guard *resilience.DegradationService, exporter *export.Service, audit *security.AuditLogger, generators *resilience.GeneratorSource, statics *resilience.StaticSource) *DashboardHandler {
	h := &DashboardHandler{
		repo:   repo,
		cache:  dc,
		guard:  guard,
		export: exporter,
		audit:  audit,
		logger: logging.GetLogger(),
	}
	h.registerFallbacks(generators, statics)
	return h
}

// registerFallbacks wires the generator and static tail of the
// fallback chain. The generators build empty-but-well-formed payloads
// so the frontend renders an empty dashboard rather than an error
// page; the statics are the last resort when even generation panics.
func (h *DashboardHandler) registerFallbacks(generators *resilience.GeneratorSource, statics *resilience.StaticSource) {
	if generators != nil {
		generators.Register(DataTypeDashboardSummary, func(ctx context.Context, fctx resilience.FallbackContext) (interface{}, error) {
			return emptySummary(), nil
		})
		generators.Register(DataTypeDashboardCharts, func(ctx context.Context, fctx resilience.FallbackContext) (interface{}, error) {
			period, _ := fctx["period"].(string)
			if period == "" {
				period = DefaultChartPeriod
			}
			return emptyCharts(period), nil
		})
		generators.Register(DataTypeRecentActivity, func(ctx context.Context, fctx resilience.FallbackContext) (interface{}, error) {
			return emptyRecent(), nil
		})
	}

	if statics != nil {
		statics.Register(DataTypeDashboardSummary, emptySummary())
		statics.Register(DataTypeDashboardCharts, emptyCharts(DefaultChartPeriod))
		statics.Register(DataTypeRecentActivity, emptyRecent())
	}
}

// Summary handles GET /api/dashboard/summary.
func (h *DashboardHandler) Summary(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	if summary, err := h.cache.GetSummary(c.Request.Context(), userID.String()); err == nil {
		SuccessResponseWithMeta(c, summary, CachedMeta())
		return
	}

	fctx := resilience.FallbackContext{
		"cache_key": cache.DashboardSummaryKeyRaw(userID.String()),
		"user_id":   userID.String(),
	}
	result, err := h.guard.Run(c.Request.Context(), ResourceDatabase, DataTypeDashboardSummary, fctx, func(ctx context.Context) (interface{}, error) {
		return h.repo.DashboardSummary(ctx, userID)
	})
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	if summary, ok := result.Value.(*types.DashboardSummary); ok && !result.PartialFailure {
		if cacheErr := h.cache.SetSummary(c.Request.Context(), userID.String(), summary); cacheErr != nil {
			h.logger.Warn("summary cache write failed", "error", cacheErr.Error())
		}
	}
	SuccessResponseWithMeta(c, result.Value, MetaFromResult(result))
}

// Charts handles GET /api/dashboard/charts?period=7d|30d|90d.
func (h *DashboardHandler) Charts(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	period := c.DefaultQuery("period", DefaultChartPeriod)
	days, ok := chartPeriods[period]
	if !ok {
		ValidationErrorResponse(c, "unsupported period", map[string]interface{}{
			"period":    period,
			"supported": []string{"7d", "30d", "90d"},
		})
		return
	}

	if charts, err := h.cache.GetCharts(c.Request.Context(), userID.String(), period); err == nil {
		SuccessResponseWithMeta(c, charts, CachedMeta())
		return
	}

	fctx := resilience.FallbackContext{
		"cache_key": cache.DashboardChartsKeyRaw(userID.String(), period),
		"user_id":   userID.String(),
		"period":    period,
	}
	result, err := h.guard.Run(c.Request.Context(), ResourceDatabase, DataTypeDashboardCharts, fctx, func(ctx context.Context) (interface{}, error) {
		return h.repo.DashboardCharts(ctx, userID, days)
	})
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	if charts, ok := result.Value.(*types.DashboardCharts); ok && !result.PartialFailure {
		if cacheErr := h.cache.SetCharts(c.Request.Context(), userID.String(), period, charts); cacheErr != nil {
			h.logger.Warn("charts cache write failed", "error", cacheErr.Error())
		}
	}
	SuccessResponseWithMeta(c, result.Value, MetaFromResult(result))
}

// Recent handles GET /api/dashboard/recent?limit=&days=.
func (h *DashboardHandler) Recent(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	limit := intQuery(c, "limit", DefaultRecentLimit)
	if limit < 1 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	days := intQuery(c, "days", DefaultRecentWindow)
	if days < 1 {
		days = DefaultRecentWindow
	}

	if recent, err := h.cache.GetRecent(c.Request.Context(), userID.String(), limit, days); err == nil {
		SuccessResponseWithMeta(c, recent, CachedMeta())
		return
	}

	fctx := resilience.FallbackContext{
		"cache_key": cache.RecentExperimentsKeyRaw(userID.String(), limit, days),
		"user_id":   userID.String(),
	}
	result, err := h.guard.Run(c.Request.Context(), ResourceDatabase, DataTypeRecentActivity, fctx, func(ctx context.Context) (interface{}, error) {
		return h.repo.RecentExperiments(ctx, userID, limit, days)
	})
	if err != nil {
		h.respondError(c, err, result)
		return
	}

	if recent, ok := result.Value.(*types.RecentExperiments); ok && !result.PartialFailure {
		if cacheErr := h.cache.SetRecent(c.Request.Context(), userID.String(), limit, days, recent); cacheErr != nil {
			h.logger.Warn("recent cache write failed", "error", cacheErr.Error())
		}
	}
	SuccessResponseWithMeta(c, result.Value, MetaFromResult(result))
}

// Export handles GET /api/dashboard/export?format=json|csv|pdf|html.
// Exports read straight from the repository; a degraded export built
// from fallback data would be worse than a clean failure.
func (h *DashboardHandler) Export(c *gin.Context) {
	userID, ok := auth.GetCurrentUserID(c)
	if !ok {
		UnauthorizedResponse(c, "authentication required")
		return
	}

	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	report, err := h.buildReport(c.Request.Context(), userID)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	artifact, err := h.export.Render(c.Request.Context(), report, format)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if h.audit != nil {
		_ = h.audit.LogDataAccessEvent(c.Request.Context(), security.EventTypeDataExport, userID.String(), "dashboard_report", map[string]interface{}{
			"format":      string(format),
			"experiments": len(report.Experiments),
			"size_bytes":  artifact.Size,
		})
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

func (h *DashboardHandler) buildReport(ctx context.Context, userID uuid.UUID) (*export.Report, error) {
	report := &export.Report{
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
	}

	pagination := &database.Pagination{Page: 1, PageSize: 100}
	for {
		experiments, total, err := h.repo.ListExperiments(ctx, userID, &database.ExperimentFilter{}, pagination)
		if err != nil {
			return nil, err
		}

		for _, experiment := range experiments {
			results, err := h.repo.ListResults(ctx, experiment.ID)
			if err != nil {
				return nil, err
			}
			report.Experiments = append(report.Experiments, export.ReportExperiment{
				Experiment: experiment,
				Results:    results,
			})
		}

		if int64(pagination.Page*pagination.PageSize) >= total {
			break
		}
		pagination.Page++
	}

	return report, nil
}

func (h *DashboardHandler) respondError(c *gin.Context, err error, result *resilience.OperationResult) {
	if errors.IsType(err, errors.ErrorTypeUnavailable) {
		UnavailableResponse(c, err, result)
		return
	}
	ErrorResponseFromError(c, err)
}

func emptySummary() *types.DashboardSummary {
	return &types.DashboardSummary{
		ExperimentsByType:   map[string]int{},
		ExperimentsByStatus: map[string]int{},
		AverageMetrics:      map[string]float64{},
		LastUpdated:         time.Now().UTC(),
	}
}

func emptyCharts(period string) *types.DashboardCharts {
	return &types.DashboardCharts{
		Period:            period,
		ActivityTimeline:  []types.TimelineBucket{},
		TypeDistribution:  []types.TypeCount{},
		PerformanceTrends: []types.TrendPoint{},
		GeneratedAt:       time.Now().UTC(),
	}
}

func emptyRecent() *types.RecentExperiments {
	return &types.RecentExperiments{
		Experiments: []types.ExperimentWithResult{},
		Insights:    map[string]interface{}{},
		FetchedAt:   time.Now().UTC(),
	}
}
