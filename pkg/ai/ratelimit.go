package ai

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimitedClient struct {
	Client
	limiter *rate.Limiter
}

// NewRateLimitedClient paces generation and embedding calls of c to rps
// requests per second. rps <= 0 returns c unchanged.
func NewRateLimitedClient(c Client, rps float64, burst int) Client {
	if rps <= 0 {
		return c
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedClient{
		Client:  c,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimitedClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.Client.GenerateCompletionWithFormat(ctx, name, description, prompt, out, opts...)
}

func (r *rateLimitedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Client.GenerateEmbedding(ctx, input)
}
