package io

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/loader"
)

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "book.txt"), []byte("الفصل الأول"), 0o644); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	l := NewFileLoader(dir)
	f := loader.BookFile{BookID: "b1", Path: "book.txt", Loader: l}
	text, err := f.GetText(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text != "الفصل الأول" {
		t.Fatalf("expected file content, got %q", text)
	}

	// cached content survives the file being removed
	os.Remove(filepath.Join(dir, "book.txt"))
	if _, err := f.GetText(context.Background()); err != nil {
		t.Fatalf("expected cached content, got %v", err)
	}

	missing := loader.BookFile{BookID: "b1", Path: "missing.txt", Loader: l}
	if _, err := missing.GetText(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFileLoaderAbsolutePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abs.txt")
	os.WriteFile(path, []byte("text"), 0o644)

	l := NewFileLoader("/does/not/matter")
	b, err := l.GetBookText(context.Background(), loader.BookFile{Path: path})
	if err != nil || string(b) != "text" {
		t.Fatalf("expected absolute path to be read, got %q %v", b, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.GetBookText(ctx, loader.BookFile{Path: path}); err == nil {
		t.Fatalf("expected cancelled context to fail")
	}
}
