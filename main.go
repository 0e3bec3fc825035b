package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/config"
	"github.com/ekaya-inc/ekaya-decisions/pkg/database"
	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
	"github.com/ekaya-inc/ekaya-decisions/pkg/handlers"
	"github.com/ekaya-inc/ekaya-decisions/pkg/llm"
	"github.com/ekaya-inc/ekaya-decisions/pkg/logging"
	"github.com/ekaya-inc/ekaya-decisions/pkg/mcp"
	"github.com/ekaya-inc/ekaya-decisions/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-decisions/pkg/metrics"
	"github.com/ekaya-inc/ekaya-decisions/pkg/middleware"
	"github.com/ekaya-inc/ekaya-decisions/pkg/repositories"
	"github.com/ekaya-inc/ekaya-decisions/pkg/retry"
	"github.com/ekaya-inc/ekaya-decisions/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	serviceName     = "ekaya-decisions"
	shutdownTimeout = 15 * time.Second
	llmProbeTimeout = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Int("max_paths", cfg.Evaluation.MaxPaths),
		zap.Duration("evaluation_timeout", cfg.Evaluation.Timeout),
		zap.String("llm_provider", cfg.LLM.Provider))

	// Postgres may still be starting when the service comes up.
	db, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (*database.DB, error) {
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
			MinConnections: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			logger.Warn("Database not ready", zap.String("error", logging.SanitizeError(err)))
		}
		return db, err
	})
	if err != nil {
		return fmt.Errorf("connect to database: %s", logging.SanitizeError(err))
	}
	defer db.Close()

	sqlDB := db.SQLDB()
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("run migrations: %w", err)
	}
	_ = sqlDB.Close()

	collector := metrics.NewCollector("ekaya_decisions")

	limits := decision.Limits{
		MaxNodes:             cfg.Evaluation.MaxNodes,
		MaxDepth:             cfg.Evaluation.MaxDepth,
		MaxPaths:             cfg.Evaluation.MaxPaths,
		ProbabilityTolerance: cfg.Evaluation.ProbabilityTolerance,
	}
	engine := decision.NewEngine(limits, decision.CostUnits{
		BaseLabel:  cfg.Evaluation.BaseUnitLabel,
		LargeLabel: cfg.Evaluation.LargeUnitLabel,
	})

	llmClient, err := llm.NewClient(&cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}
	probeLLM(ctx, llmClient, logger)

	treeRepo := repositories.NewDecisionTreeRepository()
	treeService := services.NewDecisionTreeService(treeRepo, engine, cfg.Evaluation.Timeout, collector, logger)
	explainer := services.NewRecommendationExplainer(treeService, llmClient, cfg.LLM.Temperature, collector, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, llmClient, logger).RegisterRoutes(mux)
	handlers.NewDecisionTreeHandler(treeService, explainer, logger).
		RegisterRoutes(mux, database.WithTenantContext(db, logger))
	mux.Handle("GET /metrics", collector.Handler())

	mcpServer := mcp.NewServer(serviceName, cfg.Version, limits, logger)
	mcpServer.RegisterDecisionTreeTools(&tools.DecisionTreeToolDeps{
		Tenants:     database.NewTenantScopeProvider(db),
		TreeService: treeService,
		Logger:      logger.Named("mcp-tools"),
	})
	mux.Handle("/mcp", mcpServer.Handler())

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger, collector)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting "+serviceName,
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// probeLLM logs whether the configured explainer provider answers. A failing
// provider does not stop startup; explain requests report the error instead.
func probeLLM(ctx context.Context, client llm.LLMClient, logger *zap.Logger) {
	if client == nil {
		logger.Info("Recommendation explainer disabled: no LLM provider configured")
		return
	}

	result := llm.NewConnectionTester(llmProbeTimeout).Test(ctx, client)
	fields := []zap.Field{
		zap.String("provider", result.Provider),
		zap.String("model", result.Model),
		zap.Int64("response_time_ms", result.ResponseTimeMs),
	}
	if !result.Success {
		logger.Warn("LLM connection test failed", append(fields,
			zap.String("error_type", string(result.ErrorType)),
			zap.String("message", result.Message))...)
		return
	}
	logger.Info("LLM connection test passed", fields...)
}
