package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const namesKey = "tillsync:caches"

// RedisStorage keeps each partition in one redis hash keyed by request key.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// OpenRedis parses url and pings the server.
func OpenRedis(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStorage(client), nil
}

func (r *RedisStorage) Close() error { return r.client.Close() }

func (r *RedisStorage) Get(ctx context.Context, cacheName, key string) (*Entry, error) {
	data, err := r.client.HGet(ctx, hashKey(cacheName), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry failed: %w", err)
	}
	return &e, nil
}

func (r *RedisStorage) Put(ctx context.Context, cacheName string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry failed: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, namesKey, cacheName)
		p.HSet(ctx, hashKey(cacheName), e.Key, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, cacheName, key string) error {
	if err := r.client.HDel(ctx, hashKey(cacheName), key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, namesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis names failed: %w", err)
	}
	return names, nil
}

func (r *RedisStorage) DropCache(ctx context.Context, cacheName string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, hashKey(cacheName))
		p.SRem(ctx, namesKey, cacheName)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis drop failed: %w", err)
	}
	return nil
}

func hashKey(cacheName string) string {
	return "tillsync:cache:" + cacheName
}
