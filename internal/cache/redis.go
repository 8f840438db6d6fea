package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/pkg/logger"
)

const redisKeyPrefix = "response:"

// Redis is the shared response cache backend. Every backend failure is
// reported as ErrCacheUnavailable so the pipeline degrades to a miss instead
// of failing the request.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(host string, port int, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis response cache initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", host, port)),
		zap.Duration("ttl", ttl),
	)

	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, clientID, normalizedQuery string, version int64) (*pipeline.Result, bool, error) {
	key := redisKeyPrefix + Key(clientID, normalizedQuery, version)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", pipeline.ErrCacheUnavailable, err)
	}

	var result pipeline.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("%w: corrupt entry: %v", pipeline.ErrCacheUnavailable, err)
	}

	return &result, true, nil
}

func (r *Redis) Put(ctx context.Context, clientID, normalizedQuery string, version int64, result pipeline.Result) error {
	key := redisKeyPrefix + Key(clientID, normalizedQuery, version)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrCacheUnavailable, err)
	}

	return nil
}
