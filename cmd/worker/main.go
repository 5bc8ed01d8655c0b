package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"dispatchhub/internal/cache"
	"dispatchhub/internal/config"
	"dispatchhub/internal/database"
	"dispatchhub/internal/log"
	"dispatchhub/internal/queue"
	"dispatchhub/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel("dispatch-worker", cfg.Worker.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	if client == nil {
		logger.Fatal().Msg("redis.addr is required for the worker")
	}
	defer client.Close()

	backend, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer backend.Close()

	gateway := worker.NewWebhookGateway(cfg.Push.WebhookURL, cfg.Push.Timeout, logger)
	processor := worker.NewProcessor(backend.Stores.Users, gateway, cfg.Worker.StaleAfter, logger)
	consumer := queue.NewConsumer(client, queue.ConsumerConfig{
		Stream:        cfg.Push.Stream,
		Group:         cfg.Worker.Group,
		Consumer:      cfg.Worker.Consumer,
		ClaimInterval: cfg.Worker.ClaimInterval,
	}, logger, processor)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
