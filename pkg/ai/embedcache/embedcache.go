package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Wrap puts a process wide LRU in front of e, keyed by the embedded text.
// Non-positive size or ttl returns e unchanged.
func Wrap(e ai.Embedder, size int, ttl time.Duration) ai.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// WrapClient is Wrap for a full ai.Client; generation calls pass through.
func WrapClient(c ai.Client, size int, ttl time.Duration) ai.Client {
	if c == nil || size <= 0 || ttl <= 0 {
		return c
	}
	return &lruClient{
		Client: c,
		embed:  Wrap(c, size, ttl),
	}
}

type lruEmbedder struct {
	next  ai.Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	key := cacheKey(input)
	if cached, ok := l.cache.Get(key); ok {
		logger.Debug("[AI] embedding cache hit", "bytes", len(input))
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.GenerateEmbedding(ctx, input)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

// Len reports the number of cached vectors.
func (l *lruEmbedder) Len() int {
	return l.cache.Len()
}

type lruClient struct {
	ai.Client
	embed ai.Embedder
}

func (l *lruClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return l.embed.GenerateEmbedding(ctx, input)
}

func cacheKey(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
