package character

import (
	"context"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

// StoredEmbedding is a persisted profile embedding together with the text it
// was computed from.
type StoredEmbedding struct {
	CharacterID string
	Text        string
	Vector      []float32
}

// EmbeddingLoader returns the persisted embeddings of a book.
type EmbeddingLoader interface {
	LoadEmbeddings(ctx context.Context, bookID string) ([]StoredEmbedding, error)
}

// EmbeddingSaver persists a freshly computed embedding.
type EmbeddingSaver interface {
	SaveEmbedding(ctx context.Context, bookID string, e StoredEmbedding) error
}

type cacheKey struct {
	bookID      string
	characterID string
}

type cacheEntry struct {
	text   string
	vector []float32
}

// EmbeddingCache holds one embedding per (book, character). An entry is
// only reused while the character's rendered profile text is unchanged.
// It is owned by a single run and not safe for concurrent use.
type EmbeddingCache struct {
	embedder ai.Embedder
	saver    EmbeddingSaver
	entries  map[cacheKey]cacheEntry

	hits   int
	misses int
}

// NewEmbeddingCache creates a cache. saver may be nil.
func NewEmbeddingCache(embedder ai.Embedder, saver EmbeddingSaver) *EmbeddingCache {
	return &EmbeddingCache{
		embedder: embedder,
		saver:    saver,
		entries:  make(map[cacheKey]cacheEntry),
	}
}

// Warm loads persisted embeddings of a book so that unchanged profiles are
// not embedded again after a resume.
func (c *EmbeddingCache) Warm(ctx context.Context, loader EmbeddingLoader, bookID string) (int, error) {
	if loader == nil {
		return 0, nil
	}
	stored, err := loader.LoadEmbeddings(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("load embeddings: %w", err)
	}
	n := 0
	for _, e := range stored {
		if e.CharacterID == "" || len(e.Vector) == 0 {
			continue
		}
		c.entries[cacheKey{bookID, e.CharacterID}] = cacheEntry{text: e.Text, vector: slices.Clone(e.Vector)}
		n++
	}
	logger.Debug("[Resolver] Warmed embedding cache", "book_id", bookID, "entries", n)
	return n, nil
}

// Get returns the embedding of ch's rendered profile, computing it when the
// cached text is missing or stale.
func (c *EmbeddingCache) Get(ctx context.Context, ch Character) ([]float32, error) {
	text := RenderProfile(ch.Profile)
	key := cacheKey{ch.BookID, ch.ID}
	if e, ok := c.entries[key]; ok && e.text == text {
		c.hits++
		return e.vector, nil
	}

	c.misses++
	vec, err := c.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("embed character %s: %w", ch.ID, err)
	}
	c.entries[key] = cacheEntry{text: text, vector: vec}

	if c.saver != nil {
		err := c.saver.SaveEmbedding(ctx, ch.BookID, StoredEmbedding{CharacterID: ch.ID, Text: text, Vector: vec})
		if err != nil {
			logger.Warn("[Resolver] Failed to persist embedding", "character_id", ch.ID, "err", err)
		}
	}
	return vec, nil
}

// Invalidate drops the entry of a character whose profile changed.
func (c *EmbeddingCache) Invalidate(bookID, characterID string) {
	delete(c.entries, cacheKey{bookID, characterID})
}

func (c *EmbeddingCache) Len() int {
	return len(c.entries)
}

// Stats returns the number of cache hits and misses so far.
func (c *EmbeddingCache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
