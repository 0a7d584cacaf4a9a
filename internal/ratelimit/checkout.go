package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/fenuasim/portal/internal/config"
	obsmetrics "github.com/fenuasim/portal/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyCheckoutUser = "checkout:user:%s"

// CheckoutLimiter throttles checkout session creation per user.
type CheckoutLimiter struct {
	enabled bool

	log     *zap.Logger
	bucket  *TokenBucket
	metrics *obsmetrics.Metrics

	rate  float64
	burst int
}

type CheckoutLimiterParams struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Client  *redis.Client       `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewCheckoutLimiter(p CheckoutLimiterParams) (*CheckoutLimiter, error) {
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled || p.Client == nil {
		return &CheckoutLimiter{log: p.Log.Named("ratelimit.checkout")}, nil
	}
	if limitCfg.CheckoutRate <= 0 || limitCfg.CheckoutBurst <= 0 {
		return nil, fmt.Errorf("checkout rate limit must be positive")
	}

	return &CheckoutLimiter{
		enabled: true,
		log:     p.Log.Named("ratelimit.checkout"),
		bucket:  NewTokenBucket(p.Client),
		metrics: p.Metrics,
		rate:    limitCfg.CheckoutRate,
		burst:   limitCfg.CheckoutBurst,
	}, nil
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow reports whether the user may create another checkout session.
// Redis errors fail open so payments are never blocked by the cache
// tier.
func (l *CheckoutLimiter) Allow(ctx context.Context, userID string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}

	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutUser, userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return true, 0
	}

	if !res.Allowed {
		if l.metrics != nil {
			l.metrics.RecordRateLimitDenied(ctx, "checkout", "rate")
		}
		return false, res.RetryAfter
	}
	if l.metrics != nil {
		l.metrics.RecordRateLimitAllowed(ctx, "checkout")
	}
	return true, 0
}
