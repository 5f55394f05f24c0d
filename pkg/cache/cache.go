package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/protobuf/proto"
)

// Redis is a small JSON/protobuf cache. A nil *Redis is valid and caches
// nothing, which is how the frontend runs when no REDIS_URL is configured.
type Redis struct {
	client *redis.Client
}

func New(ctx context.Context, redisURL string) (*Redis, error) {
	if redisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url inválida: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 3

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping falhou: %w", err)
	}

	return &Redis{client: client}, nil
}

// Client exposes the underlying connection for pub/sub.
func (r *Redis) Client() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// Get retrieves JSON-encoded value from cache
func (r *Redis) Get(ctx context.Context, key string, dest interface{}) bool {
	if r == nil {
		return false
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, dest) == nil
}

// Set stores JSON-encoded value in cache
func (r *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if r == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	r.client.Set(ctx, key, data, ttl)
}

// GetProto retrieves protobuf-encoded value from cache
func (r *Redis) GetProto(ctx context.Context, key string, dest proto.Message) bool {
	if r == nil {
		return false
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return proto.Unmarshal(val, dest) == nil
}

// SetProto stores protobuf-encoded value in cache
func (r *Redis) SetProto(ctx context.Context, key string, msg proto.Message, ttl time.Duration) {
	if r == nil {
		return
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return
	}
	r.client.Set(ctx, key, data, ttl)
}

func (r *Redis) Del(ctx context.Context, keys ...string) {
	if r == nil || len(keys) == 0 {
		return
	}
	r.client.Del(ctx, keys...)
}

// DelPattern deletes keys matching a pattern in batches
func (r *Redis) DelPattern(ctx context.Context, pattern string) {
	if r == nil {
		return
	}
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	const batchSize = 100

	pipe := r.client.Pipeline()
	count := 0

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++

		if count >= batchSize {
			pipe.Exec(ctx)
			count = 0
		}
	}

	if count > 0 {
		pipe.Exec(ctx)
	}
}

func (r *Redis) Close() {
	if r == nil {
		return
	}
	r.client.Close()
}
