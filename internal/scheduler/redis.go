package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ingot/internal/loader"
)

// RedisConfig configures a RedisScheduler.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Queue is the list tasks are pushed onto; defaults to "ingot:tasks".
	Queue string
}

// RedisScheduler queues tasks on a Redis list shared by worker processes.
// Idempotence is enforced with a SET NX marker per task identity: the first
// CreateTask for a given (type, url, extra) pushes the task, later ones are
// no-ops.
type RedisScheduler struct {
	client *redis.Client
	queue  string
}

var _ loader.Scheduler = (*RedisScheduler)(nil)

// NewRedisScheduler connects to Redis and verifies the connection.
func NewRedisScheduler(ctx context.Context, cfg RedisConfig) (*RedisScheduler, error) {
	if cfg.Queue == "" {
		cfg.Queue = "ingot:tasks"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisScheduler{client: client, queue: cfg.Queue}, nil
}

func (s *RedisScheduler) CreateTask(ctx context.Context, taskType, url string, extra map[string]string) error {
	marker := s.queue + ":seen:" + taskKey(taskType, url, extra)

	created, err := s.client.SetNX(ctx, marker, 1, 0).Result()
	if err != nil {
		return fmt.Errorf("marking task for %s: %w", url, err)
	}
	if !created {
		// Task already pending or complete.
		return nil
	}

	payload, err := json.Marshal(Task{Type: taskType, URL: url, Extra: extra})
	if err != nil {
		return fmt.Errorf("encoding task for %s: %w", url, err)
	}
	if err := s.client.LPush(ctx, s.queue, payload).Err(); err != nil {
		return fmt.Errorf("queuing task for %s: %w", url, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisScheduler) Close() error {
	return s.client.Close()
}
