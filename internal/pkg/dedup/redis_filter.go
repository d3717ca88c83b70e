package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFilter shares seen ids between instances. Each id expires after ttl.
type RedisFilter struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisFilter(client redis.UniversalClient, ttl time.Duration) *RedisFilter {
	return &RedisFilter{client: client, ttl: ttl}
}

func (f *RedisFilter) IsDuplicate(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	created, err := f.client.SetNX(ctx, "dedup:"+id, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record message id: %w", err)
	}
	return !created, nil
}
