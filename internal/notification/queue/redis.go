package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kudos/internal/clock"
	"github.com/smallbiznis/kudos/internal/notification/domain"
	"github.com/smallbiznis/kudos/internal/observability/metrics"
	"github.com/smallbiznis/kudos/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultKey          = "kudos:notifications"
	keyJobLock          = "kudos:notifications:lock:%s"
	defaultPollInterval = time.Second
	defaultBatchSize    = 50
	defaultLockTTL      = time.Minute
	retryBackoff        = 30 * time.Second
)

type RedisOptions struct {
	Key          string
	PollInterval time.Duration
	BatchSize    int
	LockTTL      time.Duration
}

// Redis keeps jobs in a sorted set scored by due time in unix milliseconds.
// Every replica polls the set; a job is claimed with a redis lock and removed
// before it runs, so it is delivered by exactly one replica.
type Redis struct {
	client *redis.Client
	locker *ratelimit.Locker
	runner domain.Runner
	clock  clock.Clock
	log    *zap.Logger
	opts   RedisOptions

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewRedis(client *redis.Client, locker *ratelimit.Locker, runner domain.Runner, c clock.Clock, log *zap.Logger, opts RedisOptions) *Redis {
	if c == nil {
		c = clock.SystemClock{}
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Redis{
		client: client,
		locker: locker,
		runner: runner,
		clock:  c,
		log:    log.Named("notification.redis"),
		opts:   opts,
		stop:   make(chan struct{}),
	}
}

func (q *Redis) Schedule(ctx context.Context, delay time.Duration, event string, payload map[string]string) error {
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
		DueAt:   q.clock.Now().Add(delay).UTC(),
	}
	if err := q.enqueue(ctx, job); err != nil {
		return err
	}
	q.log.Debug("job scheduled", zap.String("job_id", job.ID), zap.String("event", event), zap.Time("due_at", job.DueAt))
	return nil
}

func (q *Redis) enqueue(ctx context.Context, job domain.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.client.ZAdd(ctx, q.opts.Key, redis.Z{
		Score:  float64(job.DueAt.UnixMilli()),
		Member: string(raw),
	}).Err()
}

// Start polls for due jobs until Stop is called.
func (q *Redis) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-q.stop:
				return
			case <-ticker.C:
				if _, err := q.Poll(context.Background()); err != nil {
					q.log.Warn("poll failed", zap.Error(err))
				}
			}
		}
	}()
}

func (q *Redis) Stop(ctx context.Context) error {
	close(q.stop)
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

// Poll runs the jobs that are due and returns how many were run.
func (q *Redis) Poll(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.clock.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.opts.Key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: int64(q.opts.BatchSize),
	}).Result()
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, member := range members {
		ok, err := q.claimAndRun(ctx, member)
		if err != nil {
			return ran, err
		}
		if ok {
			ran++
		}
	}

	if depth, err := q.client.ZCard(ctx, q.opts.Key).Result(); err == nil {
		metrics.Reconcile().SetQueueDepth(depth)
	}
	return ran, nil
}

func (q *Redis) claimAndRun(ctx context.Context, member string) (bool, error) {
	var job domain.Job
	if err := json.Unmarshal([]byte(member), &job); err != nil {
		q.log.Error("dropping undecodable job", zap.Error(err))
		return false, q.client.ZRem(ctx, q.opts.Key, member).Err()
	}

	lease, err := q.locker.Acquire(ctx, fmt.Sprintf(keyJobLock, job.ID), q.opts.LockTTL)
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			q.log.Warn("failed to release job lock", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()

	removed, err := q.client.ZRem(ctx, q.opts.Key, member).Result()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	if err := q.runner.Run(runCtx, job); err != nil {
		q.retry(ctx, job, err)
	}
	return true, nil
}

func (q *Redis) retry(ctx context.Context, job domain.Job, cause error) {
	log := q.log.With(zap.String("job_id", job.ID), zap.String("event", job.Event), zap.Error(cause))
	job.Attempts++
	if errors.Is(cause, domain.ErrInvalidJob) || errors.Is(cause, domain.ErrUnknownEvent) || job.Attempts >= domain.MaxAttempts {
		log.Error("job dropped", zap.Int("attempts", job.Attempts))
		return
	}
	job.DueAt = q.clock.Now().Add(retryBackoff * time.Duration(job.Attempts)).UTC()
	if err := q.enqueue(ctx, job); err != nil {
		log.Error("failed to requeue job", zap.NamedError("requeue_error", err))
		return
	}
	log.Warn("job failed, requeued", zap.Int("attempts", job.Attempts), zap.Time("due_at", job.DueAt))
}

var _ domain.Dispatcher = (*Redis)(nil)
