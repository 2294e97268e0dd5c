// Package queue holds the delayed job backends behind the notification dispatcher.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/notification/domain"
	"go.uber.org/zap"
)

const runTimeout = 30 * time.Second

// Memory runs jobs on in-process timers. Pending jobs are lost on restart.
type Memory struct {
	runner domain.Runner
	clock  clock.Clock
	log    *zap.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func NewMemory(runner domain.Runner, c clock.Clock, log *zap.Logger) *Memory {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Memory{
		runner: runner,
		clock:  c,
		log:    log.Named("notification.memory"),
		timers: map[string]*time.Timer{},
	}
}

func (q *Memory) Schedule(ctx context.Context, delay time.Duration, event string, payload map[string]string) error {
	if event == "" {
		return domain.ErrInvalidJob
	}
	if delay < 0 {
		delay = 0
	}
	job := domain.Job{
		ID:      uuid.NewString(),
		Event:   event,
		Payload: payload,
		DueAt:   q.clock.Now().Add(delay),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return context.Canceled
	}
	q.wg.Add(1)
	q.timers[job.ID] = time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.fire(job)
	})
	q.log.Debug("job scheduled", zap.String("job_id", job.ID), zap.String("event", event), zap.Duration("delay", delay))
	return nil
}

func (q *Memory) fire(job domain.Job) {
	q.mu.Lock()
	delete(q.timers, job.ID)
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if err := q.runner.Run(ctx, job); err != nil {
		q.log.Error("job failed", zap.String("job_id", job.ID), zap.String("event", job.Event), zap.Error(err))
	}
}

// Pending returns the number of jobs not yet fired.
func (q *Memory) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Stop cancels jobs that have not fired and waits for running ones.
func (q *Memory) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	dropped := 0
	for id, t := range q.timers {
		if t.Stop() {
			q.wg.Done()
			dropped++
		}
		delete(q.timers, id)
	}
	q.mu.Unlock()
	if dropped > 0 {
		q.log.Warn("pending jobs dropped on shutdown", zap.Int("count", dropped))
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.Dispatcher = (*Memory)(nil)
