package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/database"
	"github.com/edukit/examgate-backend/internal/handler"
	"github.com/edukit/examgate-backend/internal/lock"
	"github.com/edukit/examgate-backend/internal/logger"
	"github.com/edukit/examgate-backend/internal/repository"
	"github.com/edukit/examgate-backend/internal/router"
	"github.com/edukit/examgate-backend/internal/scheduler"
	"github.com/edukit/examgate-backend/internal/service"
	"github.com/edukit/examgate-backend/internal/validator"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamGate Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool)
	recordRepo := repository.NewExamRecordRepository(pool)
	answerRepo := repository.NewAnswerRecordRepository(pool)

	locks := lock.NewService(rdb, log)
	authService := service.NewAuthService(cfg)
	tokenService := service.NewTokenService(rdb, cfg, log)
	pusher := service.NewPusher(rdb, log)
	answerService := service.NewAnswerService(rdb, cfg, pusher, log)
	syncService := service.NewSyncService(rdb, answerRepo, log)
	submitService := service.NewSubmitService(rdb, recordRepo, tokenService, syncService, answerService, cfg, log)
	statusService := service.NewStatusService(examRepo, tokenService, pusher, submitService, log)
	anticheatService := service.NewAntiCheatService(rdb, recordRepo, cfg, log)

	handlers := &router.Handlers{
		Execute: handler.NewExecuteHandler(examRepo, recordRepo, tokenService, answerService,
			submitService, locks, cfg, log),
		Status: handler.NewStatusHandler(statusService, log),
		WS: handler.NewWSHandler(rdb, examRepo, recordRepo, tokenService, answerService,
			anticheatService, pusher, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(pool, rdb),
	}

	sched := scheduler.New(cfg, statusService, syncService, submitService, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

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

	// 2. Stop the scheduler; Stop waits for running jobs.
	sched.Stop()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
