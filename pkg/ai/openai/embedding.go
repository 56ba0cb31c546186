package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"

	"github.com/openai/openai-go/v3"
)

const opEmbed = "embedding"

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model. Blank input yields a zero vector of
// the configured dimension without a request.
//
// Example:
//
//	vec, err := client.GenerateEmbedding(ctx, []byte("Ahmed | merchant | events: ..."))
func (c *OpenAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, c.embedDim), nil
	}
	if c.EmbeddingClient == nil {
		return nil, ai.NewError(opEmbed, ai.KindFatal, errors.New("embedding client is not configured"))
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{string(input)}},
		Model: c.embeddingModel,
	}
	if c.embedDim > 0 {
		body.Dimensions = openai.Int(int64(c.embedDim))
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, classify(opEmbed, err)
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.EmbeddingClient.Embeddings.New(rCtx, body)
	if err != nil {
		return nil, classify(opEmbed, err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != 1 {
		return nil, ai.NewError(opEmbed, ai.KindMalformed, fmt.Errorf("embedding response size mismatch: got %d want 1", len(response.Data)))
	}
	return fitDimensions(response.Data[0].Embedding, c.embedDim), nil
}

// fitDimensions converts to float32 and truncates or zero-pads to dim.
// dim <= 0 keeps the provider's length.
func fitDimensions(in []float64, dim int) []float32 {
	if dim <= 0 {
		dim = len(in)
	}
	out := make([]float32, dim)
	for i := 0; i < dim && i < len(in); i++ {
		out[i] = float32(in[i])
	}
	return out
}
