package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wajahat01/NeuroLab-360-sub000/internal/api"
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

const version = "1.0.0"

func main() {
	// .env is optional, environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "neurolab-api",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	tracer, err := tracing.NewTracingService(&tracing.Config{
		ServiceName:    "neurolab-api",
		ServiceVersion: version,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRate:   cfg.Tracing.SampleRatio,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Health(ctx); err != nil {
		cancel()
		logger.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	cancel()
	logger.Info("Database connection established", "host", cfg.Database.Host)

	// Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Health(ctx); err != nil {
		cancel()
		logger.Error("Redis health check failed", "error", err)
		os.Exit(1)
	}
	cancel()
	logger.Info("Redis connection established", "host", cfg.Redis.Host)

	// Metrics
	m := metrics.NewMetrics(nil)

	// Tiered cache
	localCfg := &cache.LocalConfig{
		MaxSize:         cfg.Cache.LocalMaxSize,
		CleanupInterval: cfg.Cache.CleanupInterval,
		TTLCeiling:      cfg.Cache.LocalTTLCeiling,
	}
	local := cache.NewLocalCache(localCfg)
	shared := cache.NewSharedCache(redisClient)
	tiered := cache.NewTieredCache(local, shared, &cache.Config{
		Local:          localCfg,
		BackfillTTL:    cfg.Cache.BackfillTTL,
		StaleThreshold: cfg.Cache.StaleThreshold,
		DefaultTTL:     cfg.Cache.DefaultTTL,
	}, logger, m.Cache)
	defer tiered.Stop()
	dashboards := cache.NewDashboardCache(tiered)

	// Resilience: fallback chain, alerting, degradation guard
	fallbacks, generators, statics := resilience.NewDefaultFallbackChain(
		api.TieredStaleStore{Cache: tiered}, m.Resilience)

	alerts := resilience.NewAlertManager()
	alerts.AddHandler(resilience.NewLoggingAlertHandler())
	if cfg.Alerting.Enabled && cfg.Alerting.SlackWebhookURL != "" {
		alerts.AddHandler(resilience.NewSlackAlertHandler(cfg.Alerting.SlackWebhookURL, "#neurolab-alerts"))
	}

	guard := resilience.NewDegradationService(resilience.DegradationConfig{
		Retry: resilience.RetryConfig{
			MaxRetries:        cfg.Resilience.MaxRetries,
			BaseDelay:         cfg.Resilience.BaseDelay,
			MaxDelay:          cfg.Resilience.MaxDelay,
			BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
			Jitter:            cfg.Resilience.Jitter,
		},
		FailureThreshold: cfg.Resilience.FailureThreshold,
		RecoveryTimeout:  cfg.Resilience.RecoveryTimeout,
		RetryAfterHint:   cfg.Resilience.RetryAfterHint,
	}, fallbacks, m.Resilience, alerts)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	healthWatch := resilience.NewSystemHealthMonitor(alerts, guard)
	healthWatch.Start(rootCtx)
	defer healthWatch.Stop()

	// Security
	secCfg := security.DefaultSecurityConfig()
	secCfg.EncryptionKey = cfg.Security.EncryptionKey
	secCfg.Version = version
	secCfg.RateLimit.PerIPRPS = cfg.Security.RateLimitRPS
	secCfg.RateLimit.PerIPBurst = cfg.Security.RateLimitBurst
	secManager, err := security.NewSecurityManager(secCfg, redisClient.Client())
	if err != nil {
		logger.Error("Failed to initialize security manager", "error", err)
		os.Exit(1)
	}

	// Repositories
	repos := database.NewRepositories(db, secManager.GetEncryptionService())
	repo := database.NewRepositoryAdapter(db, repos)

	// Auth
	supabase, err := auth.NewSupabaseClient(&cfg.Supabase)
	if err != nil {
		logger.Error("Failed to initialize Supabase client", "error", err)
		os.Exit(1)
	}
	authMiddleware := auth.NewMiddleware(supabase)

	// Health checks
	healthSvc := health.NewService(logger, &health.Config{
		Timeout: 5 * time.Second,
		Metadata: map[string]string{
			"service": "neurolab-api",
			"version": version,
		},
	})
	healthSvc.RegisterChecker("database", health.NewDatabaseChecker(db, "postgres"))
	healthSvc.RegisterChecker("redis", health.NewRedisChecker(redisClient, "redis"))
	healthSvc.RegisterChecker("cache", health.NewCacheChecker(tiered, "tiered_cache"))
	healthSvc.RegisterChecker("degradation", health.NewCustomChecker("degradation", func(ctx context.Context) (health.Status, string, error) {
		_, level := guard.Monitor().Overall()
		switch level {
		case resilience.LevelNone:
			return health.StatusHealthy, "all resources healthy", nil
		case resilience.LevelSevere, resilience.LevelCritical:
			return health.StatusUnhealthy, "service severely degraded", nil
		default:
			return health.StatusDegraded, "service partially degraded", nil
		}
	}))

	// Pool samplers feed gauge metrics
	collector := metrics.NewMetricsCollector(m, 15*time.Second,
		func() (int, int, int) {
			stats := db.Stats()
			return stats.OpenConnections, stats.Idle, stats.MaxOpenConnections
		},
		func() (int, int, int) {
			stats := redisClient.Stats()
			return int(stats.TotalConns), int(stats.IdleConns), int(stats.StaleConns)
		},
	)
	go collector.Start(rootCtx)
	defer collector.Stop()

	router := api.NewRouter(api.Deps{
		Config:     cfg,
		Repo:       repo,
		Auth:       authMiddleware,
		Supabase:   supabase,
		Tiered:     tiered,
		Dashboards: dashboards,
		Guard:      guard,
		Generators: generators,
		Statics:    statics,
		Exporter:   export.NewService(),
		Security:   secManager,
		Health:     healthSvc,
		Metrics:    m,
		Tracing:    tracer,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", "error", err)
	}

	logger.Info("Server exited")
}
