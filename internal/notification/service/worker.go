package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/kudos/internal/notification/domain"
	"go.uber.org/zap"
)

// Worker routes due jobs to the handler registered for their event.
type Worker struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[string]domain.Handler
}

func NewWorker(log *zap.Logger) *Worker {
	return &Worker{
		log:      log.Named("notification.worker"),
		handlers: map[string]domain.Handler{},
	}
}

func (w *Worker) Register(event string, h domain.Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = h
}

func (w *Worker) Run(ctx context.Context, job domain.Job) error {
	w.mu.RLock()
	h, ok := w.handlers[job.Event]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEvent, job.Event)
	}

	log := w.log.With(zap.String("job_id", job.ID), zap.String("event", job.Event), zap.Int("attempt", job.Attempts+1))
	if err := h(ctx, job); err != nil {
		log.Warn("job handler failed", zap.Error(err))
		return err
	}
	log.Debug("job done")
	return nil
}

var _ domain.Runner = (*Worker)(nil)
