package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type flakyEmbedder struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (e *flakyEmbedder) GenerateEmbedding(ctx context.Context, _ []byte) ([]float32, error) {
	e.mu.Lock()
	idx := e.calls
	e.calls++
	e.mu.Unlock()

	if idx < len(e.errs) {
		if e.errs[idx] == context.DeadlineExceeded {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, e.errs[idx]
	}
	return []float32{1, 0}, nil
}

func TestEmbedRetries(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		opts      []GenerateOption
		wantCalls int
		wantKind  ErrorKind
	}{
		{
			name:      "transient then success",
			errs:      []error{NewError(embedOp, KindTransient, errors.New("503"))},
			wantCalls: 2,
		},
		{
			name:      "unclassified error is retried",
			errs:      []error{errors.New("connection reset by peer")},
			wantCalls: 2,
		},
		{
			name:      "fatal is not retried",
			errs:      []error{NewError(embedOp, KindFatal, errors.New("401"))},
			wantCalls: 1,
			wantKind:  KindFatal,
		},
		{
			name:      "retries exhausted",
			errs:      []error{errors.New("503"), errors.New("503"), errors.New("503")},
			opts:      []GenerateOption{WithRetries(2)},
			wantCalls: 3,
			wantKind:  KindTransient,
		},
		{
			name:      "attempt timeout",
			errs:      []error{context.DeadlineExceeded},
			opts:      []GenerateOption{WithTimeout(5 * time.Millisecond)},
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &flakyEmbedder{errs: tt.errs}
			opts := append([]GenerateOption{WithBackoff(time.Millisecond), WithTimeout(time.Second)}, tt.opts...)

			vec, err := Embed(context.Background(), e, []byte("Ahmed"), opts...)
			if e.calls != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, e.calls)
			}
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(vec) != 2 {
					t.Fatalf("expected a vector, got %v", vec)
				}
				return
			}
			if KindOf(err) != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
		})
	}
}

func TestEmbedReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &flakyEmbedder{}
	_, err := Embed(ctx, e, []byte("Ahmed"), WithBackoff(time.Millisecond))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if e.calls != 0 {
		t.Fatalf("expected no calls, got %d", e.calls)
	}
}

func TestNewRetryingEmbedder(t *testing.T) {
	e := &flakyEmbedder{errs: []error{errors.New("503")}}
	wrapped := NewRetryingEmbedder(e, WithBackoff(time.Millisecond))

	if _, err := wrapped.GenerateEmbedding(context.Background(), []byte("Ahmed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", e.calls)
	}

	rewrapped := NewRetryingEmbedder(wrapped, WithRetries(0))
	if inner := rewrapped.(*retryingEmbedder).embedder; inner != e {
		t.Fatalf("expected wrapping to replace the previous policy, got %T", inner)
	}
}
