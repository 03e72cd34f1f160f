package scheduler

import (
	"context"
	"fmt"

	"ingot/internal/config"
	"ingot/internal/loader"
)

// NewSchedulerFromConfig creates a Scheduler implementation based on the
// scheduler config type.
func NewSchedulerFromConfig(ctx context.Context, cfg config.SchedulerConfig) (loader.Scheduler, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryScheduler(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis scheduler requires redis_addr to be set")
		}
		return NewRedisScheduler(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Queue:    cfg.RedisQueue,
		})
	default:
		return nil, fmt.Errorf("unknown scheduler type: %s", cfg.Type)
	}
}
