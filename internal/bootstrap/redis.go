package bootstrap

import (
	"context"
	"time"

	"github.com/ecoscore-finance/ecoscore-backend/config"
	"github.com/redis/go-redis/v9"
)

// OpenRedis creates the broker client. It does not connect; the telemetry
// subscriber and health check surface connection problems.
func OpenRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		ContextTimeoutEnabled: true,
	})
}

// RedisPing adapts the client to a plain error-returning check.
func RedisPing(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
