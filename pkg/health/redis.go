package health

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisChecker probes the data-map cache. Because the cache degrades to
// pass-through on failure, a broken Redis only degrades the service.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a Redis health checker
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name returns the component name
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check pings Redis
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	started := time.Now()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return result(c.Name(), StatusDegraded, "cache unavailable: "+err.Error(), started)
	}
	return result(c.Name(), StatusHealthy, "connected", started)
}
