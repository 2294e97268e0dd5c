package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/kudos/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultInterval = 5 * time.Minute

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(register),
)

type workerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	DB        *gorm.DB
	Log       *zap.Logger
	Pusher    Pusher `optional:"true"`
}

func register(p workerParams) {
	if p.Pusher == nil {
		return
	}
	log := p.Log.Named("metrics.push")

	registry := prometheus.NewRegistry()
	worker := &Worker{
		pusher:   p.Pusher,
		stats:    NewDonationStats(p.DB, registry),
		gatherer: prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		interval: p.Config.Metrics.Interval,
		log:      log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push worker", zap.Duration("interval", worker.interval))
			go func() {
				defer close(done)
				worker.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// Worker refreshes donation stats and pushes on a fixed interval.
type Worker struct {
	pusher   Pusher
	stats    *DonationStats
	gatherer prometheus.Gatherer
	interval time.Duration
	log      *zap.Logger
}

// Run pushes once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	interval := w.interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.PushOnce(ctx)
	for {
		select {
		case <-ticker.C:
			w.PushOnce(ctx)
		case <-ctx.Done():
			w.log.Info("stopping metrics push worker")
			return
		}
	}
}

func (w *Worker) PushOnce(ctx context.Context) {
	if err := w.stats.Refresh(ctx); err != nil {
		w.log.Warn("refresh donation stats failed", zap.Error(err))
	}
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := w.pusher.Push(pushCtx, w.gatherer); err != nil {
		w.log.Warn("metrics push failed", zap.Error(err))
	}
}
