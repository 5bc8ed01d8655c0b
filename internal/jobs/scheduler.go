package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dispatchhub/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) error
}

// Scheduler enqueues periodic maintenance work for the worker process.
type Scheduler struct {
	cron      *cron.Cron
	queue     Enqueuer
	sweepSpec string
	log       zerolog.Logger
}

// NewScheduler expects six-field cron specs (seconds first).
func NewScheduler(q Enqueuer, sweepSpec string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:      c,
		queue:     q,
		sweepSpec: sweepSpec,
		log:       log,
	}
}

// Start is a no-op without a queue or a sweep spec.
func (s *Scheduler) Start() error {
	if s.queue == nil || s.sweepSpec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.sweepSpec, s.EnqueueCourierSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("spec", s.sweepSpec).Msg("courier sweep scheduled")
	return nil
}

// Stop halts scheduling and waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) EnqueueCourierSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := queue.NewMessage(queue.TypeCourierSweep, map[string]any{
		"requestedAt": time.Now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("build courier sweep message failed")
		return
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		s.log.Error().Err(err).Msg("enqueue courier sweep failed")
	}
}
