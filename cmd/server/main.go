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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/clock"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/repository/memory"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stemsi/exstem-attempt/internal/worker"
)

// stores is the storage wiring chosen by STORAGE_DRIVER.
type stores struct {
	exams      service.ExamCatalog
	cache      handler.ExamCacheWarmer
	attempts   service.AttemptStore
	responses  service.ResponseStore
	requests   service.ResumeRequestStore
	violations service.ViolationSink
	monitor    service.MonitorSource
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageDriver).
		Str("notify", cfg.NotifyDriver).
		Msg("Starting ExStem Attempt Service")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real{}
	m := metrics.New()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// Needed for the exam cache and violation queue in postgres mode, and for
	// room pub/sub when NOTIFY_DRIVER=redis.
	var rdb *redis.Client
	if cfg.StorageDriver == config.StorageDriverPostgres || cfg.NotifyDriver == config.NotifyDriverRedis {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// ─── Storage ───────────────────────────────────────────────────────
	var (
		st   stores
		pool *pgxpool.Pool
	)
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		cached := repository.NewCachedExamRepository(repository.NewExamRepository(pool), rdb, cfg.ExamCacheTTL, log)
		st = stores{
			exams:      cached,
			cache:      cached,
			attempts:   repository.NewAttemptRepository(pool),
			responses:  repository.NewResponseRepository(pool),
			requests:   repository.NewResumeRequestRepository(pool),
			violations: repository.NewViolationQueue(rdb),
			monitor:    repository.NewMonitorRepository(pool),
		}

		// Load all published exams into Redis BEFORE accepting traffic.
		// This avoids race conditions from lazy loading under thundering herd.
		if _, err := cached.PrewarmAll(ctx); err != nil {
			log.Warn().Err(err).Msg("Cache prewarm failed")
		}

	case config.StorageDriverMemory:
		catalog := memory.NewExamCatalog()
		if cfg.MemoryExamsFile != "" {
			var err error
			catalog, err = memory.LoadExamCatalog(cfg.MemoryExamsFile)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to load exams file")
			}
		}
		attempts := memory.NewAttemptStore(clk)
		violations := memory.NewViolationLog()
		st = stores{
			exams:      catalog,
			cache:      catalog,
			attempts:   attempts,
			responses:  memory.NewResponseStore(clk),
			requests:   memory.NewResumeRequestStore(),
			violations: violations,
			monitor:    memory.NewMonitor(attempts, violations),
		}
		log.Warn().Msg("Using in-memory storage; data is lost on restart")

	default:
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("Unknown STORAGE_DRIVER")
	}

	// ─── Notifications ─────────────────────────────────────────────────
	var (
		pub notify.Publisher
		sub notify.Subscriber
	)
	switch cfg.NotifyDriver {
	case config.NotifyDriverRedis:
		pub, sub = notify.NewRedisPublisher(rdb), notify.NewRedisSubscriber(rdb)
	case config.NotifyDriverLocal:
		hub := notify.NewHub()
		pub, sub = hub, hub
	case config.NotifyDriverNone:
		pub = notify.Nop{}
	default:
		log.Fatal().Str("driver", cfg.NotifyDriver).Msg("Unknown NOTIFY_DRIVER")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	attemptService := service.NewAttemptService(st.exams, st.attempts, st.responses, st.violations, pub, clk, m, log)
	sealService := service.NewSealService(attemptService, st.requests, pub, cfg.ResumeRequestTTL, log)
	gradingService := service.NewGradingService(st.exams, st.attempts, st.responses, pub, clk, m,
		cfg.ManualCorrectThreshold, cfg.BulkGradingConcurrency, log)
	monitorService := service.NewMonitorService(st.monitor, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Attempt: handler.NewAttemptHandler(attemptService, log),
		Seal:    handler.NewSealHandler(sealService, log),
		Grading: handler.NewGradingHandler(gradingService, log),
		Monitor: handler.NewMonitorHandler(st.exams, monitorService, sub, log),
		Exam:    handler.NewExamHandler(st.cache, log),
		WS:      handler.NewWSHandler(attemptService, sub, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	if pool != nil {
		violationWorker := worker.NewViolationWorker(
			repository.NewViolationQueue(rdb),
			repository.NewViolationRepository(pool),
			m, worker.Options{}, log,
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			violationWorker.Start(workerCtx)
		}()
	}

	guestLimiter := middleware.NewRateLimiter(cfg.GuestTokensPerMinute, time.Minute, clk)
	go guestLimiter.RunCleanup(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, guestLimiter)

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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the buffered violations to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}
