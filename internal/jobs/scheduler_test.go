package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"dispatchhub/internal/queue"
)

type fakeEnqueuer struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func TestEnqueueCourierSweep(t *testing.T) {
	q := &fakeEnqueuer{}
	s := NewScheduler(q, "0 */5 * * * *", zerolog.Nop())
	s.EnqueueCourierSweep()

	if len(q.msgs) != 1 || q.msgs[0].Type != queue.TypeCourierSweep {
		t.Fatalf("enqueued = %+v", q.msgs)
	}

	// A broken queue is logged, not fatal.
	q.err = errors.New("redis down")
	s.EnqueueCourierSweep()
}

func TestSchedulerStart(t *testing.T) {
	tests := []struct {
		name    string
		queue   Enqueuer
		spec    string
		wantErr bool
	}{
		{"no queue", nil, "0 */5 * * * *", false},
		{"no spec", &fakeEnqueuer{}, "", false},
		{"bad spec", &fakeEnqueuer{}, "every now and then", true},
		{"valid", &fakeEnqueuer{}, "0 */5 * * * *", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(tt.queue, tt.spec, zerolog.Nop())
			err := s.Start()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			s.Stop()
		})
	}
}
