package redis

import (
	"github.com/redis/go-redis/v9"

	"commons-chat/internal/config"
)

// NewClient creates a Redis client for the broadcast transport.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
