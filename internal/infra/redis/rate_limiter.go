package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter caps how many generation jobs are opened per window, so a
// bulk run cannot flood the generation service.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// GenerationWindowKey buckets job starts per batch type and clock window.
func GenerationWindowKey(batchType string, window time.Duration) string {
	bucket := time.Now().Unix() / int64(window.Seconds())
	return fmt.Sprintf("rate_limit:generation:%s:%d", batchType, bucket)
}
