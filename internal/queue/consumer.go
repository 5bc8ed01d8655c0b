package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg Message) error
}

type ConsumerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

// Consumer reads a stream through a consumer group, acking each entry once
// its handler succeeds. Entries left pending by a crashed consumer are
// reclaimed after ClaimInterval.
type Consumer struct {
	client  *redis.Client
	cfg     ConsumerConfig
	logger  zerolog.Logger
	handler MessageHandler
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig, logger zerolog.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		handler: handler,
	}
}

// EnsureGroup creates the stream and group if they do not exist yet.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.read(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("stream read error")
				time.Sleep(2 * time.Second)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.claimStalled(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("claim stalled entries failed")
			}
		default:
		}
	}
}

func (c *Consumer) read(ctx context.Context) error {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for _, stream := range result {
		for _, entry := range stream.Messages {
			c.process(ctx, entry)
		}
	}
	return nil
}

func (c *Consumer) claimStalled(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  10,
	}).Result()
	if err != nil {
		return err
	}

	for _, p := range pending {
		if p.Idle < c.cfg.ClaimInterval {
			continue
		}
		entries, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.ClaimInterval,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.logger.Error().Err(err).Str("entry_id", p.ID).Msg("claim error")
			continue
		}
		for _, entry := range entries {
			c.process(ctx, entry)
		}
	}
	return nil
}

// process hands one entry to the handler. Undecodable entries are acked and
// dropped; handler failures stay pending for a later claim.
func (c *Consumer) process(ctx context.Context, entry redis.XMessage) {
	log := c.logger.With().Str("entry_id", entry.ID).Logger()

	msg, err := Decode(entry.Values)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed entry")
		c.ack(ctx, entry.ID)
		return
	}
	if err := c.handler.Handle(ctx, msg); err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("handle message failed")
		return
	}
	c.ack(ctx, entry.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Error().Err(err).Str("entry_id", id).Msg("ack failed")
	}
}
