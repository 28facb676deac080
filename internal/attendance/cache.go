package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSummaryCache keeps student summaries as JSON strings with a TTL.
type RedisSummaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSummaryCache builds a cache under the attendance:summary: key prefix.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSummaryCache{client: client, prefix: "attendance:summary:", ttl: ttl}
}

func (c *RedisSummaryCache) key(studentID string) string {
	return c.prefix + studentID
}

// Get returns the cached summary, if any.
func (c *RedisSummaryCache) Get(ctx context.Context, studentID string) (Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.key(studentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Summary{}, false, nil
		}
		return Summary{}, false, err
	}
	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return Summary{}, false, err
	}
	return sum, true, nil
}

// Put stores a summary.
func (c *RedisSummaryCache) Put(ctx context.Context, sum Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sum.StudentID), raw, c.ttl).Err()
}

// Invalidate removes a cached summary.
func (c *RedisSummaryCache) Invalidate(ctx context.Context, studentID string) error {
	return c.client.Del(ctx, c.key(studentID)).Err()
}
