package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zagas-life-dev/studybetterlib/internal/api"
	"github.com/Zagas-life-dev/studybetterlib/internal/config"
	"github.com/Zagas-life-dev/studybetterlib/internal/realtime"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/postgres"
	"github.com/Zagas-life-dev/studybetterlib/internal/repository/redis"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting Study Better chat server")

	// Initialize database
	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisClient.Close()

	// Schema detector: resolves which chat table layout is active
	detector := postgres.NewSchemaDetector(db, cfg.Chat.SchemaProbeTTL)
	log.Info().
		Str("mode", string(detector.Mode(context.Background()))).
		Msg("detected chat schema mode")

	// Realtime notifier over LISTEN/NOTIFY
	notifierCtx, stopNotifier := context.WithCancel(context.Background())
	defer stopNotifier()

	notifier := realtime.NewNotifier(
		postgres.NewChangeFeed(db),
		detector,
		cfg.Chat.RealtimeReprobeInterval,
	)
	go func() {
		if err := notifier.Run(notifierCtx); err != nil && notifierCtx.Err() == nil {
			log.Error().Err(err).Msg("realtime notifier stopped")
		}
	}()

	// Initialize router
	router := api.NewRouter(cfg, db, redisClient, notifier, detector)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	stopNotifier()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
