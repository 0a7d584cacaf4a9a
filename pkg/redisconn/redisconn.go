// Package redisconn opens the shared redis connection used by the
// catalog cache and the rate limiter.
package redisconn

import (
	"context"
	"strings"

	"github.com/fenuasim/portal/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(Open),
)

// Open returns a nil client when no address is configured. Consumers
// treat a nil client as "feature disabled" and fall through.
func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Named("redis").Info("redis not configured, cache and rate limiting disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// Redis being down must not block boot; consumers
				// degrade per request.
				log.Named("redis").Warn("redis ping failed", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}
