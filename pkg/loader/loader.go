package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

var ErrNotText = errors.New("book file is not valid UTF-8 text")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BookFile points at the plain text of a book. The content is fetched
// through its Loader.
type BookFile struct {
	ID     string
	BookID string
	Path   string
	Loader BookLoader
}

// BookLoader fetches the raw bytes of a book file. Implementations may read
// from disk, object storage or elsewhere.
type BookLoader interface {
	GetBookText(ctx context.Context, file BookFile) ([]byte, error)
}

// GetText loads the file and returns it as a string with a leading byte
// order mark removed.
//
// Example:
//
//	file := loader.BookFile{BookID: "b1", Path: "books/b1.txt", Loader: l}
//	text, err := file.GetText(ctx)
func (f *BookFile) GetText(ctx context.Context) (string, error) {
	if f.Loader == nil {
		return "", fmt.Errorf("book file %s has no loader", f.Path)
	}
	raw, err := f.Loader.GetBookText(ctx, *f)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", f.Path, err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%s: %w", f.Path, ErrNotText)
	}
	return string(raw), nil
}

// CacheKey identifies the content of a file across loaders.
func CacheKey(file BookFile) string {
	return file.BookID + "\x00" + file.Path
}

// DefaultCacheSize is how many books a Cache keeps.
const DefaultCacheSize = 8

// Cache memoizes the most recently fetched file contents. Concurrent loads of
// the same key share one fetch.
type Cache struct {
	items *lru.Cache[string, []byte]
	group singleflight.Group
}

func NewCache() *Cache {
	return NewCacheWithSize(DefaultCacheSize)
}

func NewCacheWithSize(size int) *Cache {
	items, err := lru.New[string, []byte](max(size, 1))
	if err != nil {
		panic(err)
	}
	return &Cache{items: items}
}

// Load returns the cached content of key or calls fetch once to fill it.
// Failed fetches are not cached.
func (c *Cache) Load(key string, fetch func() ([]byte, error)) ([]byte, error) {
	if b, ok := c.items.Get(key); ok {
		return b, nil
	}
	result, err, _ := c.group.Do(key, func() (any, error) {
		if b, ok := c.items.Get(key); ok {
			return b, nil
		}
		b, err := fetch()
		if err != nil {
			return nil, err
		}
		c.items.Add(key, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
