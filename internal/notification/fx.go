package notification

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/config"
	"github.com/smallbiznis/kudos/internal/notification/domain"
	"github.com/smallbiznis/kudos/internal/notification/queue"
	"github.com/smallbiznis/kudos/internal/notification/service"
	"github.com/smallbiznis/kudos/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(service.NewReceiptSender),
	fx.Provide(newWorker),
	fx.Provide(NewDispatcher),
)

func newWorker(log *zap.Logger, receipts *service.ReceiptSender) *service.Worker {
	w := service.NewWorker(log)
	w.Register(domain.EventProcessPaidTransaction, receipts.Handle)
	return w
}

type DispatcherParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Worker    *service.Worker
	Clock     clock.Clock   `optional:"true"`
	Redis     *redis.Client `optional:"true"`
}

// NewDispatcher picks the redis queue when redis is configured and falls back
// to in-process timers otherwise.
func NewDispatcher(p DispatcherParams) domain.Dispatcher {
	if p.Redis != nil {
		q := queue.NewRedis(p.Redis, ratelimit.NewLocker(p.Redis), p.Worker, p.Clock, p.Log, queue.RedisOptions{
			LockTTL: time.Duration(p.Config.RateLimit.ReceiptLockTTLSec) * time.Second,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				q.Start()
				return nil
			},
			OnStop: q.Stop,
		})
		return q
	}

	q := queue.NewMemory(p.Worker, p.Clock, p.Log)
	p.Lifecycle.Append(fx.Hook{OnStop: q.Stop})
	return q
}
