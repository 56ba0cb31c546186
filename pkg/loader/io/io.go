package io

import (
	"context"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/loader"
)

// FileLoader reads books from the local filesystem, optionally below a
// root directory. Results are cached.
type FileLoader struct {
	root  string
	cache *loader.Cache
}

func NewFileLoader(root string) *FileLoader {
	return &FileLoader{root: root, cache: loader.NewCache()}
}

func (l *FileLoader) path(file loader.BookFile) string {
	if l.root == "" || filepath.IsAbs(file.Path) {
		return file.Path
	}
	return filepath.Join(l.root, file.Path)
}

func (l *FileLoader) GetBookText(ctx context.Context, file loader.BookFile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		return os.ReadFile(l.path(file))
	})
}

var _ loader.BookLoader = (*FileLoader)(nil)
