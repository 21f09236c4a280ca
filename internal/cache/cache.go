// Package cache holds the typed lookaside caches shared by search results and
// title lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Store is a typed key/value cache. A backend error reads as a miss.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
}

// Memory is a bounded in-process Store with a per-entry TTL.
type Memory[V any] struct {
	entries *expirable.LRU[string, V]
	clone   func(V) V
}

// NewMemory returns a Memory holding at most size entries. clone, when set, is
// applied on the way in and out so callers never share backing arrays.
func NewMemory[V any](size int, ttl time.Duration, clone func(V) V) *Memory[V] {
	if clone == nil {
		clone = func(v V) V { return v }
	}
	return &Memory[V]{entries: expirable.NewLRU[string, V](size, nil, ttl), clone: clone}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	value, ok := m.entries.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return m.clone(value), true
}

func (m *Memory[V]) Set(_ context.Context, key string, value V) {
	m.entries.Add(key, m.clone(value))
}

// Redis stores JSON-encoded values under prefix+key.
type Redis[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis[V any](client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *Redis[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis[V]{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis cache get failed", slog.String("prefix", r.prefix), slog.String("error", err.Error()))
		}
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		r.logger.Warn("redis cache entry corrupt", slog.String("key", r.prefix+key), slog.String("error", err.Error()))
		var zero V
		return zero, false
	}
	return value, true
}

func (r *Redis[V]) Set(ctx context.Context, key string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("redis cache set failed", slog.String("prefix", r.prefix), slog.String("error", err.Error()))
	}
}
