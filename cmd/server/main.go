package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatherly-live/server/internal/api"
	"github.com/gatherly-live/server/internal/api/handlers"
	"github.com/gatherly-live/server/internal/auth"
	"github.com/gatherly-live/server/internal/config"
	"github.com/gatherly-live/server/internal/domain/events"
	"github.com/gatherly-live/server/internal/domain/registrations"
	"github.com/gatherly-live/server/internal/domain/users"
	"github.com/gatherly-live/server/internal/metrics"
	"github.com/gatherly-live/server/internal/realtime"
	"github.com/gatherly-live/server/internal/storage/postgres"
	"github.com/rs/zerolog"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", version).Msg("starting gatherly server")

	metrics.Init(version, commit, buildDate)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := postgres.Connect(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	if err := postgres.MigrateUp(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("repository init failed")
	}

	hub := realtime.NewHub(logger)
	metrics.RegisterRealtimeStats(hub.RoomCount, hub.SubscriberCount)

	coordinator := registrations.NewCoordinator(repo.Registrations(), hub, logger)
	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)

	router := api.NewRouter(cfg, logger, api.Deps{
		Users:       users.NewService(repo.Users(), logger),
		Events:      events.NewService(repo.Events(), logger),
		Coordinator: coordinator,
		Attendees:   handlers.AttendeeLister(repo.Registrations()),
		Hub:         hub,
		JWT:         jwt,
		Pool:        pool,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	shutdown(server, logger)
}

func shutdown(server *http.Server, logger zerolog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
