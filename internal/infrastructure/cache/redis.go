package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// NewRedisClient creates a Redis client and verifies the connection
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// CancelFlags tracks cooperative cancellation requests. A worker mid-chunk
// polls the flag between chunks; a set flag survives worker restarts because
// it lives in Redis, not in process memory.
type CancelFlags struct {
	client *redis.Client
}

// NewCancelFlags creates a cancel flag store
func NewCancelFlags(client *redis.Client) *CancelFlags {
	return &CancelFlags{client: client}
}

func cancelKey(meetingID string) string {
	return "pipeline:cancel:" + meetingID
}

// Request marks a meeting for cancellation. The flag expires after 24h so
// stale requests do not linger forever.
func (c *CancelFlags) Request(ctx context.Context, meetingID string) error {
	return c.client.Set(ctx, cancelKey(meetingID), "1", 24*time.Hour).Err()
}

// IsRequested reports whether cancellation was requested for the meeting
func (c *CancelFlags) IsRequested(ctx context.Context, meetingID string) (bool, error) {
	n, err := c.client.Exists(ctx, cancelKey(meetingID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes the cancellation flag after the pipeline acknowledged it
func (c *CancelFlags) Clear(ctx context.Context, meetingID string) error {
	return c.client.Del(ctx, cancelKey(meetingID)).Err()
}
