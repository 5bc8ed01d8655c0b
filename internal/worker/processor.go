// Package worker handles messages taken off the push stream.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/queue"
	"dispatchhub/internal/service"
)

type CourierSweeper interface {
	MarkStaleCouriersOffline(ctx context.Context, before time.Time) (int64, error)
}

type PushSender interface {
	Send(ctx context.Context, n service.NotificationView) error
}

// Processor implements queue.MessageHandler. A returned error leaves the
// entry pending so another consumer can claim it.
type Processor struct {
	couriers   CourierSweeper
	push       PushSender
	staleAfter time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

func NewProcessor(couriers CourierSweeper, push PushSender, staleAfter time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		couriers:   couriers,
		push:       push,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

var _ queue.MessageHandler = (*Processor)(nil)

func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypePush:
		return p.handlePush(ctx, msg)
	case queue.TypeCourierSweep:
		return p.handleCourierSweep(ctx)
	default:
		p.logger.Warn().Str("type", msg.Type).Msg("unknown message type")
		return nil
	}
}

func (p *Processor) handlePush(ctx context.Context, msg queue.Message) error {
	var n service.NotificationView
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		// Retrying cannot fix a bad payload.
		p.logger.Error().Err(err).Msg("drop push message with invalid payload")
		return nil
	}
	if err := p.push.Send(ctx, n); err != nil {
		return fmt.Errorf("push notification %s: %w", n.ID, err)
	}
	p.logger.Debug().Str("notification_id", n.ID).Str("recipient", n.Recipient).Msg("push delivered")
	return nil
}

func (p *Processor) handleCourierSweep(ctx context.Context) error {
	if p.staleAfter <= 0 {
		return nil
	}
	cutoff := p.now().UTC().Add(-p.staleAfter)
	n, err := p.couriers.MarkStaleCouriersOffline(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("courier sweep: %w", err)
	}
	p.logger.Info().Int64("couriers", n).Time("cutoff", cutoff).Msg("stale couriers marked offline")
	return nil
}
