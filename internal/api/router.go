package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/auth"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/cache"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/database"
	"github.com/wajahat01/NeuroLab-360-sub000/internal/export"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/config"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/health"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/metrics"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/resilience"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/security"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/tracing"
)

// Deps bundles everything the router needs. All fields except Config,
// Repo and Auth may be nil; the router degrades to the corresponding
// feature being absent.
type Deps struct {
	Config     *config.Config
	Repo       database.Repository
	Auth       *auth.Middleware
	Supabase   *auth.SupabaseClient
	Tiered     *cache.TieredCache
	Dashboards *cache.DashboardCache
	Guard      *resilience.DegradationService
	Generators *resilience.GeneratorSource
	Statics    *resilience.StaticSource
	Exporter   *export.Service
	Security   *security.SecurityManager
	Health     *health.Service
	Metrics    *metrics.Metrics
	Tracing    *tracing.TracingService
	Logger     *logging.Logger
}

// TieredStaleStore adapts the tiered cache to the fallback resolver's
// stale-read interface.
type TieredStaleStore struct {
	Cache *cache.TieredCache
}

// GetStale returns the stale value and its creation time for key.
func (s TieredStaleStore) GetStale(ctx context.Context, key string) (interface{}, time.Time, bool) {
	stale, ok := s.Cache.GetStale(ctx, key)
	if !ok {
		return nil, time.Time{}, false
	}
	return stale.Value, stale.CreatedAt, true
}

// NewRouter builds the HTTP surface: middleware stack, ops endpoints
// and the authenticated API routes.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger, deps.Metrics))
	router.Use(CORSConfig(deps.Config.Server.AllowedOrigins))
	if deps.Security != nil {
		for _, mw := range deps.Security.GetSecurityMiddleware() {
			router.Use(mw)
		}
	}
	if deps.Metrics != nil {
		router.Use(deps.Metrics.PrometheusMiddleware())
	}
	if deps.Tracing != nil {
		router.Use(deps.Tracing.TracingMiddleware())
	}

	// Ops endpoints, no auth.
	if deps.Health != nil {
		router.GET("/health", deps.Health.Handler())
		router.GET("/health/live", deps.Health.LivenessHandler())
		router.GET("/health/ready", deps.Health.ReadinessHandler())
		router.GET("/health/detailed", deps.Health.DetailedHandler())
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	experiments := NewExperimentHandler(deps.Repo, deps.Tiered, deps.Guard)
	dashboard := NewDashboardHandler(deps.Repo, deps.Dashboards, deps.Guard, deps.Exporter, auditLogger(deps.Security), deps.Generators, deps.Statics)
	system := NewSystemHandler(deps.Guard, deps.Tiered, auditLogger(deps.Security))
	authInfo := NewAuthInfoHandler(deps.Supabase)

	api := router.Group("/api")
	api.Use(deps.Auth.AuthRequired())
	{
		api.GET("/auth/me", authInfo.Me)

		exp := api.Group("/experiments")
		{
			exp.GET("", experiments.ListExperiments)
			exp.POST("", experiments.CreateExperiment)
			exp.GET("/:id", experiments.GetExperiment)
			exp.PUT("/:id", experiments.UpdateExperiment)
			exp.DELETE("/:id", experiments.DeleteExperiment)
			exp.POST("/:id/results", experiments.CreateResult)
			exp.GET("/:id/results", experiments.ListResults)
		}

		dash := api.Group("/dashboard")
		{
			dash.GET("/summary", dashboard.Summary)
			dash.GET("/charts", dashboard.Charts)
			dash.GET("/recent", dashboard.Recent)
			dash.GET("/export", dashboard.Export)
		}

		sys := api.Group("/system")
		{
			sys.GET("/status", system.Status)
			sys.POST("/maintenance", system.EnableMaintenance)
			sys.DELETE("/maintenance", system.DisableMaintenance)
			sys.GET("/cache/stats", system.CacheStats)
			sys.POST("/cache/clear", system.ClearCache)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "endpoint not found")
	})

	return router
}

func auditLogger(sm *security.SecurityManager) *security.AuditLogger {
	if sm == nil {
		return nil
	}
	return sm.GetAuditLogger()
}
