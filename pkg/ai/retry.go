package ai

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

const (
	defaultCallRetries = 3
	defaultCallTimeout = 30 * time.Second
	defaultCallBackoff = 500 * time.Millisecond

	embedOp = "embedding"
)

func defaultCallOptions(temperature float64) GenerateOptions {
	return GenerateOptions{
		Temperature: temperature,
		Retries:     defaultCallRetries,
		Timeout:     defaultCallTimeout,
		Backoff:     defaultCallBackoff,
	}
}

func retryPolicy(o GenerateOptions) util.Backoff {
	return util.Backoff{
		MaxTries:  o.Retries + 1,
		Base:      o.Backoff,
		Max:       o.Backoff * 16,
		Jitter:    o.Backoff / 2,
		Retryable: IsRetryable,
	}
}

func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyAttempt turns an expired per-attempt deadline into a timeout while
// the caller's context is still alive.
func classifyAttempt(ctx, callCtx context.Context, op string, err error) error {
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return NewError(op, KindTimeout, err)
	}
	return Classify(op, err)
}

// Embed asks e for the embedding of input. Attempts are bounded and retried
// like the ones of Query; Retries, Timeout and Backoff apply, every other
// option is ignored.
func Embed(ctx context.Context, e Embedder, input []byte, opts ...GenerateOption) ([]float32, error) {
	options := ApplyOptions(defaultCallOptions(0), opts...)

	vec, err := util.RetryWithBackoff(ctx, retryPolicy(options), func(ctx context.Context, attempt int) ([]float32, error) {
		callCtx, cancel := attemptContext(ctx, options.Timeout)
		defer cancel()

		vec, err := e.GenerateEmbedding(callCtx, input)
		if err == nil {
			return vec, nil
		}
		err = classifyAttempt(ctx, callCtx, embedOp, err)
		logger.Debug("[AI] embedding attempt failed", "attempt", attempt+1, "kind", KindOf(err), "err", err)
		return nil, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Classify(embedOp, err)
	}
	return vec, nil
}

type retryingEmbedder struct {
	embedder Embedder
	opts     []GenerateOption
}

// NewRetryingEmbedder sends every GenerateEmbedding call of e through Embed
// with opts.
func NewRetryingEmbedder(e Embedder, opts ...GenerateOption) Embedder {
	if r, ok := e.(*retryingEmbedder); ok {
		e = r.embedder
	}
	return &retryingEmbedder{embedder: e, opts: opts}
}

func (r *retryingEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return Embed(ctx, r.embedder, input, r.opts...)
}
