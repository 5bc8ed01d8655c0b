package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/queue"
	"dispatchhub/internal/service"
)

type fakeSweeper struct {
	cutoffs []time.Time
	err     error
}

func (f *fakeSweeper) MarkStaleCouriersOffline(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return int64(len(f.cutoffs)), f.err
}

type fakePush struct {
	sent []service.NotificationView
	err  error
}

func (f *fakePush) Send(_ context.Context, n service.NotificationView) error {
	f.sent = append(f.sent, n)
	return f.err
}

func TestProcessorHandle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	push, _ := queue.NewMessage(queue.TypePush, service.NotificationView{ID: "n1", Recipient: "u1", Type: "task_assigned"})
	sweep, _ := queue.NewMessage(queue.TypeCourierSweep, nil)

	tests := []struct {
		name      string
		msg       queue.Message
		pushErr   error
		sweepErr  error
		wantErr   bool
		wantSent  int
		wantSweep int
	}{
		{name: "push delivered", msg: push, wantSent: 1},
		{name: "push gateway failure is retried", msg: push, pushErr: errors.New("503"), wantErr: true, wantSent: 1},
		{name: "invalid push payload dropped", msg: queue.Message{Type: queue.TypePush, Payload: []byte(`"not an object"`)}},
		{name: "courier sweep", msg: sweep, wantSweep: 1},
		{name: "courier sweep failure", msg: sweep, sweepErr: errors.New("db down"), wantErr: true, wantSweep: 1},
		{name: "unknown type ignored", msg: queue.Message{Type: "mystery"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := &fakeSweeper{err: tt.sweepErr}
			sender := &fakePush{err: tt.pushErr}
			p := NewProcessor(sweeper, sender, 30*time.Minute, zerolog.Nop())
			p.now = func() time.Time { return now }

			err := p.Handle(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(sender.sent) != tt.wantSent {
				t.Errorf("pushes = %d, want %d", len(sender.sent), tt.wantSent)
			}
			if len(sweeper.cutoffs) != tt.wantSweep {
				t.Fatalf("sweeps = %d, want %d", len(sweeper.cutoffs), tt.wantSweep)
			}
			if tt.wantSweep > 0 && !sweeper.cutoffs[0].Equal(now.Add(-30*time.Minute)) {
				t.Errorf("cutoff = %v", sweeper.cutoffs[0])
			}
			if tt.wantSent > 0 && sender.sent[0].ID != "n1" {
				t.Errorf("sent = %+v", sender.sent[0])
			}
		})
	}
}

func TestProcessorSweepDisabled(t *testing.T) {
	sweeper := &fakeSweeper{}
	p := NewProcessor(sweeper, &fakePush{}, 0, zerolog.Nop())
	msg, _ := queue.NewMessage(queue.TypeCourierSweep, nil)
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(sweeper.cutoffs) != 0 {
		t.Errorf("sweep ran with staleAfter 0")
	}
}
