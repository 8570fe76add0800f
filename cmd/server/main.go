package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/cache"
	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/database"
	"github.com/yuresilva1/inss-study-hub/internal/engine"
	"github.com/yuresilva1/inss-study-hub/internal/handler"
	"github.com/yuresilva1/inss-study-hub/internal/logger"
	"github.com/yuresilva1/inss-study-hub/internal/metrics"
	"github.com/yuresilva1/inss-study-hub/internal/repository"
	"github.com/yuresilva1/inss-study-hub/internal/router"
	"github.com/yuresilva1/inss-study-hub/internal/service"
	"github.com/yuresilva1/inss-study-hub/internal/validator"
	"github.com/yuresilva1/inss-study-hub/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("db_driver", cfg.DBDriver).
		Str("persist_mode", cfg.PersistMode).
		Msg("Starting INSS Study Hub")

	// ─── Initialize Validator and Metrics ──────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open Storage ──────────────────────────────────────────────────
	db, err := repository.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer db.Close()
	store := db.Store

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var (
		rdb     *redis.Client
		queue   *cache.SlotQueue
		notices *cache.Notices
		sink    engine.Sink
		lock    engine.Lock
	)
	if cfg.RedisEnabled {
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		lock = cache.NewFinalizeLock(rdb, cfg.FinalizeLockTTL)
		notices = cache.NewNotices(rdb)
		if cfg.PersistMode == config.PersistRedis {
			queue = cache.NewSlotQueue(rdb, store)
			sink = queue
		}
	}

	// ─── Initialize Services ───────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	examService := service.NewExamService(store, sink, lock, service.ExamConfig{
		DefaultTimeLimit: cfg.DefaultTimeLimit,
		MaxQuestionPool:  cfg.MaxQuestionPool,
		WriteTimeout:     cfg.SlotWriteTimeout,
	}, log)

	subjectService := service.NewSubjectService(store, rdb, log)

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(examService),
		Subject: handler.NewSubjectHandler(subjectService),
		WS:      handler.NewWSHandler(examService, notices, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(db.Ping, rdb, examService, log),
	}

	// ─── Start Background Workers ──────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	if queue != nil {
		autosaveWorker := worker.NewAutosaveWorker(rdb, queue, notices, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			autosaveWorker.Start(workerCtx)
		}()
	}
	if cfg.ReconcileEnabled {
		reconcileWorker := worker.NewReconcileWorker(store, examService.ForceFinalize,
			cfg.ReconcileInterval, cfg.ReconcileGrace, cfg.ReconcileBatch, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			reconcileWorker.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSocket
	// connections are not tracked by Shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Dismount live sessions. Their queued writes drain; nothing is finalized.
	examService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
