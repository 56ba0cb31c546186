package ollama

import (
	"context"
	"errors"
	"strings"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"

	"github.com/ollama/ollama/api"
)

const opEmbed = "embedding"

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama. Blank input yields a zero
// vector of the configured dimension.
func (c *OllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, c.embedDim), nil
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	}
	if c.embedDim > 0 {
		req.Dimensions = c.embedDim
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, classify(opEmbed, err)
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, classify(opEmbed, err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) == 0 {
		return nil, ai.NewError(opEmbed, ai.KindMalformed, errors.New("no embeddings in response"))
	}
	vec := res.Embeddings[0]
	dim := c.embedDim
	if dim <= 0 {
		dim = len(vec)
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out, nil
}
