package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pylon-apis/pylon/internal/config"
	"github.com/pylon-apis/pylon/internal/infrastructure/backend"
	"github.com/pylon-apis/pylon/internal/infrastructure/facilitator"
	"github.com/pylon-apis/pylon/internal/infrastructure/marketplace"
	"github.com/pylon-apis/pylon/internal/infrastructure/planner"
	"github.com/pylon-apis/pylon/internal/infrastructure/replay"
	"github.com/pylon-apis/pylon/internal/infrastructure/repositories"
	"github.com/pylon-apis/pylon/internal/interfaces/http/handlers"
	"github.com/pylon-apis/pylon/internal/interfaces/http/middleware"
	"github.com/pylon-apis/pylon/internal/registry"
	"github.com/pylon-apis/pylon/internal/reliability"
	"github.com/pylon-apis/pylon/internal/usecases"
	"github.com/pylon-apis/pylon/pkg/logger"
	"github.com/pylon-apis/pylon/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(cfg config.DatabaseConfig) (*gorm.DB, error) {
		if cfg.PostgresURL != "" {
			return gorm.Open(postgres.New(postgres.Config{
				DSN:                  cfg.PostgresURL,
				PreferSimpleProtocol: true,
			}), &gorm.Config{})
		}
		return gorm.Open(sqlite.Open(cfg.SQLiteDSN()), &gorm.Config{})
	}
	getStdDB = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Usage ledger store: sqlite with WAL by default, postgres when
	// DATABASE_URL is set.
	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open usage database: %w", err)
	}
	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	usageRepo, err := repositories.NewUsageRepository(db)
	if err != nil {
		return fmt.Errorf("failed to prepare usage ledger: %w", err)
	}

	// Capability catalog. A malformed entry is fatal at startup, never at
	// dispatch time.
	reg, err := registry.Load(cfg.Backends.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to load capability registry: %w", err)
	}
	logger.Info(context.Background(), "Capability registry loaded", zap.Int("capabilities", reg.Len()))

	// Infrastructure clients
	facilitatorClient := facilitator.NewClient(cfg.Payment.FacilitatorURL)
	marketplaceClient := marketplace.NewClient(cfg.Marketplace.URL)
	plannerClient := planner.NewClient(cfg.Planner.APIKey, cfg.Planner.Model)
	replayStore := replay.NewStore(cfg.Payment.ReplayTTL)
	caller := backend.NewCaller(cfg.Payment.BackendBypassKey)

	// Core pipeline
	executor := reliability.NewExecutor(caller)
	gate := usecases.NewPaymentGate(facilitatorClient, replayStore, cfg.Payment)
	discovery := usecases.NewDiscoveryEngine(marketplaceClient)
	dispatcher := usecases.NewDispatcher(reg, discovery, executor, gate, usageRepo, cfg.Server.Version)
	orchestrator := usecases.NewOrchestrator(plannerClient, reg, executor, gate, usageRepo)

	// Handlers
	healthHandler := handlers.NewHealthHandler(reg, executor, cfg.Server.Version)
	capabilitiesHandler := handlers.NewCapabilitiesHandler(reg, discovery, executor)
	dispatchHandler := handlers.NewDispatchHandler(dispatcher, cfg.Server.PublicURL)
	chainHandler := handlers.NewChainHandler(orchestrator, cfg.Server.PublicURL)
	usageHandler := handlers.NewUsageHandler(usageRepo, gate)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	r.Use(middleware.NewRateLimiter().Middleware())

	registerRoutes(r, routeDeps{
		healthHandler:       healthHandler,
		capabilitiesHandler: capabilitiesHandler,
		dispatchHandler:     dispatchHandler,
		chainHandler:        chainHandler,
		usageHandler:        usageHandler,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Graceful shutdown: stop accepting, drain in-flight dispatches.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error(ctx, "forced shutdown", zap.Error(err))
		}
	}()

	log.Printf("Pylon gateway starting on port %s", cfg.Server.Port)
	log.Printf("Health: http://localhost:%s/health", cfg.Server.Port)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
