package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kudos/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestLockerIsExclusive(t *testing.T) {
	srv, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "job:1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "job:1", lease.Key())

	second, err := locker.Acquire(ctx, "job:1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, lease.Release(ctx))
	third, err := locker.Acquire(ctx, "job:1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, third)

	srv.FastForward(2 * time.Minute)
	fourth, err := locker.Acquire(ctx, "job:1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, fourth)

	require.NoError(t, third.Release(ctx), "expired lease releases nothing")
	assert.True(t, srv.Exists("job:1"))
}

func TestLockerRejectsBadInput(t *testing.T) {
	_, client := newRedis(t)
	locker := NewLocker(client)

	_, err := locker.Acquire(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrLockKeyEmpty)
	_, err = locker.Acquire(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrLockTTLInvalid)

	var nilLocker *Locker
	_, err = nilLocker.Acquire(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotConfigured)

	var nilLease *Lease
	assert.NoError(t, nilLease.Release(context.Background()))
}

func TestTokenBucketDeniesAfterBurst(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, "bucket:a", 0.01, 2)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := bucket.Allow(ctx, "bucket:a", 0.01, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
	assert.Equal(t, 2, res.Limit)

	other, err := bucket.Allow(ctx, "bucket:b", 0.01, 2)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestDonationLimiter(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, DonationRate: 0.01, DonationBurst: 1}}
	limiter := NewDonationLimiter(cfg, client, zap.NewNop())
	require.True(t, limiter.Enabled())

	ok, _ := limiter.Allow(context.Background(), "10.0.0.1")
	assert.True(t, ok)
	ok, retry := limiter.Allow(context.Background(), "10.0.0.1")
	assert.False(t, ok)
	assert.Positive(t, retry)
}

func TestDonationLimiterFailsOpen(t *testing.T) {
	srv, client := newRedis(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, DonationRate: 1, DonationBurst: 1}}
	limiter := NewDonationLimiter(cfg, client, zap.NewNop())
	srv.Close()

	ok, _ := limiter.Allow(context.Background(), "10.0.0.1")
	assert.True(t, ok)
}

func TestDonationLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewDonationLimiter(config.Config{}, nil, zap.NewNop()))
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, DonationRate: 1, DonationBurst: 1}}
	limiter := NewDonationLimiter(cfg, nil, zap.NewNop())
	ok, _ := limiter.Allow(context.Background(), "x")
	assert.True(t, ok)
}
