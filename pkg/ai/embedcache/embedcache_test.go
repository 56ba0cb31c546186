package embedcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(input)), 1}, nil
}

func TestWrapCachesByText(t *testing.T) {
	inner := &countingEmbedder{}
	e := Wrap(inner, 10, time.Hour)
	ctx := context.Background()

	first, err := e.GenerateEmbedding(ctx, []byte("Ahmed | merchant"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first[0] = 999

	second, err := e.GenerateEmbedding(ctx, []byte("Ahmed | merchant"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", inner.calls)
	}
	if second[0] == 999 {
		t.Fatalf("expected cached vector to be isolated from caller mutation")
	}

	if _, err := e.GenerateEmbedding(ctx, []byte("Fatima")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", inner.calls)
	}
}

func TestWrapDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	e := Wrap(inner, 10, time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := e.GenerateEmbedding(context.Background(), []byte("x")); err == nil {
			t.Fatalf("expected error")
		}
	}
	if inner.calls != 2 {
		t.Fatalf("expected every failing call to reach upstream, got %d", inner.calls)
	}
}

func TestWrapDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	if got := Wrap(inner, 0, time.Hour); got != inner {
		t.Fatalf("expected the embedder to be returned unchanged")
	}
}
