package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"ragserver/internal/cache"
	"ragserver/internal/domain"
)

// Cache stores answers in Redis. Read failures degrade to cache misses;
// the answering pipeline never sees a Redis outage as a request error.
type Cache struct {
	client *goredis.Client
	logger *zap.Logger
}

type Config struct {
	Address  string
	Password string
	DB       int
}

// NewCache connects to Redis and verifies the connection with a ping.
func NewCache(cfg Config, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Address, err)
	}
	return &Cache{client: client, logger: logger}, nil
}

func (c *Cache) Get(ctx context.Context, sessionID, query string) (domain.Answer, bool) {
	key := cache.Key(sessionID, query)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return domain.Answer{}, false
	}
	var answer domain.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return domain.Answer{}, false
	}
	return answer, true
}

func (c *Cache) Set(ctx context.Context, sessionID, query string, answer domain.Answer, ttl time.Duration) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cache.Key(sessionID, query), data, ttl).Err()
}

// Invalidate removes every cached answer of the session.
func (c *Cache) Invalidate(ctx context.Context, sessionID string) error {
	pattern := cache.SessionPrefix(sessionID) + "*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) Close() error { return c.client.Close() }
