package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kudos/internal/config"
	"go.uber.org/zap"
)

const keyDonationClient = "kudos:donation:client:%s"

// DonationLimiter throttles donation initiation per client address. A nil or
// disabled limiter allows everything.
type DonationLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewDonationLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *DonationLimiter {
	log = log.Named("ratelimit.donation")
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}
	if client == nil {
		log.Warn("rate limit enabled without redis, donations are not throttled")
		return nil
	}
	if limitCfg.DonationRate <= 0 || limitCfg.DonationBurst <= 0 {
		log.Warn("donation rate limit must be positive, donations are not throttled",
			zap.Float64("rate", limitCfg.DonationRate),
			zap.Int("burst", limitCfg.DonationBurst),
		)
		return nil
	}
	return &DonationLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.DonationRate,
		burst:  limitCfg.DonationBurst,
		log:    log,
	}
}

func (l *DonationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether clientKey may start another donation. Redis failures
// fail open.
func (l *DonationLimiter) Allow(ctx context.Context, clientKey string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyDonationClient, clientKey), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.Error(err))
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}
