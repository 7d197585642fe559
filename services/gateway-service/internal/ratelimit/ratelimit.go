// Package ratelimit implements a fixed-window request limiter. The
// Redis backend shares the window across gateway replicas; the memory
// backend keeps a single instance working when Redis is not configured.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow reports whether the caller identified by key may proceed.
	Allow(ctx context.Context, key string) (bool, error)
}

type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	// Bucketing the key by window start makes replicas agree on the
	// window without coordination.
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window+time.Second)
	}
	return count <= l.limit, nil
}

type memoryEntry struct {
	count  int64
	bucket int64
}

type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int64
	window  time.Duration
	entries map[string]*memoryEntry
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   int64(limit),
		window:  window,
		entries: map[string]*memoryEntry{},
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().Unix() / int64(l.window.Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || e.bucket != bucket {
		e = &memoryEntry{bucket: bucket}
		l.entries[key] = e
	}
	e.count++

	// Drop entries from old windows so the map does not grow forever.
	if len(l.entries) > 10000 {
		for k, v := range l.entries {
			if v.bucket != bucket {
				delete(l.entries, k)
			}
		}
	}
	return e.count <= l.limit, nil
}
