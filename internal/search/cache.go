package search

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"btstrm/internal/cache"
	"btstrm/internal/domain"
)

const (
	defaultCacheEntries = 128
	defaultCacheTTL     = 30 * time.Minute
	redisCachePrefix    = "btstrm:search:"
)

// ResultCache stores aggregated results keyed by CacheKey.
type ResultCache = cache.Store[domain.AggregateResult]

func NewMemoryCache(size int, ttl time.Duration) *cache.Memory[domain.AggregateResult] {
	if size <= 0 {
		size = defaultCacheEntries
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return cache.NewMemory(size, ttl, cloneResult)
}

// NewRedisCache shares results between runs and machines.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *cache.Redis[domain.AggregateResult] {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return cache.NewRedis[domain.AggregateResult](client, redisCachePrefix, ttl, logger)
}

func cloneResult(result domain.AggregateResult) domain.AggregateResult {
	out := make(domain.AggregateResult, len(result))
	copy(out, result)
	return out
}

// CacheKey identifies a dispatch: the case-folded query plus the sorted indexer set.
func CacheKey(query string, indexers []domain.IndexerID) string {
	names := make([]string, 0, len(indexers))
	seen := make(map[string]struct{}, len(indexers))
	for _, indexer := range indexers {
		name := strings.ToLower(strings.TrimSpace(string(indexer)))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join([]string{
		"q=" + strings.ToLower(strings.Join(strings.Fields(query), " ")),
		"i=" + strings.Join(names, ","),
	}, "|")
}
