package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Crispemo/simulia-session/internal/config"
	"github.com/Crispemo/simulia-session/internal/database"
	"github.com/Crispemo/simulia-session/internal/handler"
	"github.com/Crispemo/simulia-session/internal/logger"
	"github.com/Crispemo/simulia-session/internal/repository"
	"github.com/Crispemo/simulia-session/internal/router"
	"github.com/Crispemo/simulia-session/internal/service"
	"github.com/Crispemo/simulia-session/internal/validator"
	"github.com/Crispemo/simulia-session/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Simulia Session Backend")

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

	// Repositories.
	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	// Services.
	authService := service.NewAuthService(cfg)
	userService := service.NewUserService(userRepo)
	questionService := service.NewQuestionService(questionRepo)
	sessionService := service.NewSessionService(sessionRepo, rdb, log)

	// Handlers.
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService, userService),
		Session:  handler.NewSessionHandler(sessionService),
		Question: handler.NewQuestionHandler(questionService),
		Monitor:  handler.NewMonitorHandler(rdb, log, cfg.AllowedOrigins),
	}

	// Background workers.
	workerCtx, workerCancel := context.WithCancel(context.Background())

	saveWorker := worker.NewSaveWorker(sessionRepo, rdb, log)
	go saveWorker.Start(workerCtx)

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

	// Graceful shutdown.
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

	// 2. Stop background workers and wait for the queue to drain.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
