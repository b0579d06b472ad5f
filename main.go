package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/capture"
	"github.com/ekaya-inc/bugsneak/pkg/classifier"
	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/database"
	"github.com/ekaya-inc/bugsneak/pkg/handlers"
	"github.com/ekaya-inc/bugsneak/pkg/logging"
	"github.com/ekaya-inc/bugsneak/pkg/mcp"
	"github.com/ekaya-inc/bugsneak/pkg/mcp/tools"
	"github.com/ekaya-inc/bugsneak/pkg/metrics"
	"github.com/ekaya-inc/bugsneak/pkg/middleware"
	"github.com/ekaya-inc/bugsneak/pkg/repositories"
	"github.com/ekaya-inc/bugsneak/pkg/retry"
	"github.com/ekaya-inc/bugsneak/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Env == "local" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("capture_mode", cfg.Capture.Mode),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("ai_enabled", cfg.AI.Enabled),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	notifier := services.NewNotificationService(cfg.Notify, logger)
	defer notifier.Wait()

	// The capturer is usable before the database is up; early events are buffered.
	capturer := capture.NewCapturer(cfg, capture.NewGuard(cfg.Capture), logger,
		capture.WithObserver(m),
		capture.WithNotifier(notifier))

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.ConnectionString(), database.DefaultMigrationsPath, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo := repositories.NewErrorLogRepository(db)
	store := services.NewGroupingStore(repo, services.NewCapacityGovernor(repo, cfg.Capture.MaxRows), logger)
	capturer.Attach(ctx, store)

	engine, err := newClassifier(cfg, logger)
	if err != nil {
		return err
	}
	contexts := classifier.NewContextBuilder(classifier.SiteInfo{
		RuntimeVersion:   cfg.Site.RuntimeVersion,
		FrameworkVersion: cfg.Site.FrameworkVersion,
		Multisite:        cfg.Site.Multisite,
		MemoryLimit:      cfg.Site.MemoryLimit,
	})

	errorLogService := services.NewErrorLogService(repo, engine, contexts, logger)
	analysisService := services.NewAnalysisService(repo, cfg.AI, logger, services.WithAnalysisObserver(m))
	retentionService := services.NewRetentionService(repo, cfg.Retention, cfg.Capture.MaxRows, logger, services.WithSweepObserver(m))

	if err := retentionService.RunScheduler(ctx); err != nil {
		return fmt.Errorf("start retention scheduler: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst, logger,
		middleware.WithRejectHook(m.ObserveRateLimited))
	defer limiter.Stop()

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db.Healthy, logger).RegisterRoutes(mux)
	handlers.NewErrorLogHandler(errorLogService, logger).RegisterRoutes(mux)
	handlers.NewIngestHandler(capturer, cfg.Ingest, m, logger).RegisterRoutes(mux, limiter.Middleware)
	handlers.NewAnalyzeHandler(analysisService, logger).RegisterRoutes(mux)
	handlers.NewSettingsHandler(cfg, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer(mcp.ServerName, cfg.Version, logger)
		mcpServer.RegisterTools(cfg.Version, db.Healthy, &tools.ErrorLogToolDeps{
			Logs:     errorLogService,
			Analysis: analysisService,
		})
		mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))
	}

	var handler http.Handler = mux
	handler = capturer.Recoverer(handler)
	handler = capture.ScopeMiddleware(nil)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting bugsneak", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// newClassifier builds the engine with the default rule table plus any rules
// from cfg.RulesFile.
func newClassifier(cfg *config.Config, logger *zap.Logger) (*classifier.Engine, error) {
	var opts []classifier.Option
	if cfg.RulesFile != "" {
		rules, err := classifier.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		logger.Info("Loaded extra classifier rules", zap.String("path", cfg.RulesFile), zap.Int("count", len(rules)))
		opts = append(opts, classifier.WithExtraRules(rules...))
	}
	return classifier.New(opts...)
}
