package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/nmorgan8/scanforge/internal/database"
	"github.com/nmorgan8/scanforge/internal/dedup"
	"github.com/nmorgan8/scanforge/internal/orchestrator"
	"github.com/nmorgan8/scanforge/internal/scanner"
	"github.com/nmorgan8/scanforge/internal/schedule"
	"github.com/nmorgan8/scanforge/internal/structuring"
	"github.com/nmorgan8/scanforge/internal/targets"
	"github.com/nmorgan8/scanforge/internal/tasks"
	"github.com/nmorgan8/scanforge/pkg/config"
	"github.com/nmorgan8/scanforge/pkg/crypto"
	"github.com/nmorgan8/scanforge/pkg/queue"
	"github.com/nmorgan8/scanforge/pkg/util"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting scanforge worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to initialize encryptor", "error", err)
		os.Exit(1)
	}

	// Build the scan engine
	structurer := structuring.NewClient(&cfg.Structuring, logger)
	adapters, err := scanner.BuildAdapters(&cfg.Scanners, structurer, logger)
	if err != nil {
		logger.Error("failed to build scanner adapters", "error", err)
		os.Exit(1)
	}

	resolver := targets.NewService(db, encryptor, logger)
	deduplicator := dedup.NewDeduplicator(db, logger)
	resources := orchestrator.NewResourceManager(cfg.Scanners.WorkDir, logger)
	schedulers := schedule.NewService(db, logger)

	orch := orchestrator.New(db, logger, adapters, resolver, deduplicator, resources, orchestrator.Config{
		Concurrency: cfg.Worker.Concurrency,
		ScanTimeout: cfg.Worker.ScanTimeout(),
	})

	// Queue plumbing
	client := queue.NewClient(&cfg.Redis)
	defer client.Close()

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)

	handler := tasks.NewHandler(logger, orch, schedulers, client)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic scheduler tick
	periodic := queue.NewPeriodic(&cfg.Redis)
	if _, err := periodic.Register(cfg.Worker.TickSpec, tasks.NewSchedulerTickTask()); err != nil {
		logger.Error("failed to register scheduler tick", "error", err)
		os.Exit(1)
	}

	// Ops endpoint
	go serveHealth(cfg, db, logger)

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		periodic.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	go func() {
		if err := periodic.Run(); err != nil {
			logger.Error("periodic scheduler error", "error", err)
		}
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}

// serveHealth exposes a liveness endpoint that verifies both backing
// stores are reachable.
func serveHealth(cfg *config.Config, db *gorm.DB, logger *slog.Logger) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := cfg.Server.Addr()
	logger.Info("health endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("health endpoint error", "error", err)
	}
}
