package ai

import (
	"context"
	"time"
)

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string        // Model identifier to use for generation
	SystemPrompts []string      // System prompts prepended to the request
	Temperature   float64       // Sampling temperature (0.0-2.0)
	Thinking      string        // Extended thinking mode configuration
	Retries       int           // Extra attempts after the first failure (Query only)
	Timeout       time.Duration // Per-attempt deadline (Query only)
	Backoff       time.Duration // Base delay between attempts (Query only)
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithRetries sets how many times Query retries a failed call.
func WithRetries(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.Retries = max(n, 0)
	}
}

// WithTimeout bounds every single attempt made by Query.
func WithTimeout(d time.Duration) GenerateOption {
	return func(o *GenerateOptions) {
		o.Timeout = d
	}
}

// WithBackoff sets the base delay of Query's exponential backoff.
func WithBackoff(d time.Duration) GenerateOption {
	return func(o *GenerateOptions) {
		o.Backoff = d
	}
}

// ApplyOptions folds opts over base.
func ApplyOptions(base GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		if o != nil {
			o(&base)
		}
	}
	return base
}

// TextGenerator produces structured output. out must be a non-nil pointer;
// the adapter derives the JSON schema from its type.
type TextGenerator interface {
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
}

// Embedder turns text into a vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
}

// Client is what a provider adapter offers to the pipeline.
type Client interface {
	TextGenerator
	Embedder
	ResetMetrics()
	GetMetrics() ModelMetrics
}
