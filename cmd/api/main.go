package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dispatchhub/internal/cache"
	"dispatchhub/internal/config"
	"dispatchhub/internal/database"
	"dispatchhub/internal/handlers"
	"dispatchhub/internal/jobs"
	"dispatchhub/internal/log"
	"dispatchhub/internal/queue"
	"dispatchhub/internal/realtime"
	"dispatchhub/internal/server"
	"dispatchhub/internal/service"
	"dispatchhub/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	backend, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, push queue and scheduler disabled")
		redisClient = nil
	}

	var push service.PushQueue
	var producer *queue.Producer
	if redisClient != nil {
		producer = queue.NewProducer(redisClient, cfg.Push.Stream)
		push = producer
	}

	var objects service.ObjectPutter
	var storageProbe handlers.Pinger
	if cfg.Storage.Enabled() {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		objects = objectStore
		storageProbe = objectStore
	} else {
		logger.Info().Msg("object storage not configured, proofs stay inline")
	}

	hub := realtime.NewHub(logger.With().Str("component", "hub").Logger())
	stores := backend.Stores

	notifications := service.NewNotificationService(stores.Notifications, hub, push, logger)
	proofs := service.NewProofService(objects, cfg.Storage.MaxProofSize, logger)
	authService := service.NewAuthService(stores.Users, stores.Sessions, cfg, logger)
	locations := service.NewLocationService(stores.Users, hub, logger)

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:           logger,
		Config:        cfg,
		Auth:          authService,
		Tasks:         service.NewTaskService(stores.Tasks, stores.Users, notifications, hub, proofs, logger),
		Users:         service.NewUserService(stores.Users, logger),
		Locations:     locations,
		Notifications: notifications,
		Database:      backend,
		Cache:         redisClient,
		Storage:       storageProbe,
		Connections:   hub,
	})
	ws := realtime.NewHandler(hub, authService, locations, cfg.Realtime, cfg.CORSOrigins, logger)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, ws)

	var scheduler *jobs.Scheduler
	if producer != nil {
		scheduler = jobs.NewScheduler(producer, cfg.Jobs.SweepSpec, logger)
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("scheduler start failed")
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, backend, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, backend *database.Backend, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	backend.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
