package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btstrm/internal/domain"
)

func TestCacheKeyNormalizesInputs(t *testing.T) {
	a := CacheKey("  The  Matrix ", []domain.IndexerID{"b", "A", "b"})
	b := CacheKey("the matrix", []domain.IndexerID{"a", "b"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, b, CacheKey("the matrix", []domain.IndexerID{"a"}))
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	cache := NewMemoryCache(4, time.Minute)
	cache.Set(context.Background(), "k", domain.AggregateResult{domain.NewCandidate("x", "t", "l", 1, 0)})

	got, ok := cache.Get(context.Background(), "k")
	require.True(t, ok)
	require.Len(t, got, 1)
	got[0].Seeders = 99

	again, _ := cache.Get(context.Background(), "k")
	assert.Equal(t, 1, again[0].Seeders)
}

func TestMemoryCacheExpires(t *testing.T) {
	cache := NewMemoryCache(4, 20*time.Millisecond)
	cache.Set(context.Background(), "k", domain.AggregateResult{domain.NewCandidate("x", "t", "l", 1, 0)})
	time.Sleep(60 * time.Millisecond)

	_, ok := cache.Get(context.Background(), "k")
	assert.False(t, ok)
}
