package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/compliance-service/erasure_service/internal/domain/entities"
)

// DataMapCache caches generated data maps in Redis so repeated compliance
// reporting does not re-aggregate the inventory tables. Registration changes
// invalidate the cached maps.
type DataMapCache struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration
}

// RedisConfig holds connection settings for the cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewDataMapCache connects to Redis and returns the cache
func NewDataMapCache(cfg *RedisConfig, logger *zap.Logger) (*DataMapCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &DataMapCache{
		client: client,
		logger: logger,
		prefix: "erasure:datamap:",
		ttl:    ttl,
	}, nil
}

// Get returns the cached data map for a tenant, or (nil, nil) on a miss.
// Cache failures degrade to a miss; the index rebuilds from the store.
func (c *DataMapCache) Get(ctx context.Context, tenantID string) (*entities.DataMap, error) {
	val, err := c.client.Get(ctx, c.key(tenantID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Warn("Data map cache read failed", zap.Error(err))
		return nil, nil
	}

	dataMap := &entities.DataMap{}
	if err := json.Unmarshal([]byte(val), dataMap); err != nil {
		c.logger.Warn("Discarding corrupt cached data map", zap.Error(err))
		return nil, nil
	}

	return dataMap, nil
}

// Set stores a data map under the tenant's key
func (c *DataMapCache) Set(ctx context.Context, tenantID string, dataMap *entities.DataMap) error {
	payload, err := json.Marshal(dataMap)
	if err != nil {
		return fmt.Errorf("failed to marshal data map: %w", err)
	}

	if err := c.client.Set(ctx, c.key(tenantID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache data map: %w", err)
	}

	return nil
}

// Invalidate drops cached maps. An empty tenant ID flushes every cached map,
// which is what registration changes do since they affect all tenants.
func (c *DataMapCache) Invalidate(ctx context.Context, tenantID string) error {
	if tenantID != "" {
		return c.client.Del(ctx, c.key(tenantID)).Err()
	}

	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached data maps: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	return c.client.Del(ctx, keys...).Err()
}

// Client exposes the underlying Redis client for health probing
func (c *DataMapCache) Client() *redis.Client {
	return c.client
}

// Close releases the Redis connection
func (c *DataMapCache) Close() error {
	return c.client.Close()
}

func (c *DataMapCache) key(tenantID string) string {
	if tenantID == "" {
		return c.prefix + "global"
	}
	return c.prefix + tenantID
}
