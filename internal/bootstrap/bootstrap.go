// Package bootstrap wires configuration into the logger, the AI adapter and
// the pipeline runner shared by the worker and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/characters/internal/config"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai/embedcache"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai/gemini"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai/ollama"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai/openai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger/console"
	jsonlog "github.com/OFFIS-RIT/kiwi/characters/pkg/logger/json"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/pipeline"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

// InitLogger installs the console or JSON backend selected by LogFormat.
func InitLogger(cfg config.Config, service string) error {
	if cfg.LogFormat == "json" {
		l, err := jsonlog.NewJSONLogger(jsonlog.JSONLoggerParams{Debug: cfg.Debug, Service: service})
		if err != nil {
			return fmt.Errorf("init json logger: %w", err)
		}
		logger.Init(l)
		return nil
	}
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: cfg.Debug}))
	return nil
}

// NewAIClient builds the configured adapter, paced by the rate limit and
// fronted by the embedding cache.
func NewAIClient(ctx context.Context, cfg config.AI) (ai.Client, error) {
	var client ai.Client
	switch cfg.Adapter {
	case "ollama":
		c, err := ollama.NewOllamaClient(ollama.NewOllamaClientParams{
			ChatModel:             cfg.ChatModel,
			EmbeddingModel:        cfg.EmbedModel,
			Dimensions:            cfg.EmbedDim,
			BaseURL:               cfg.ChatURL,
			ApiKey:                cfg.ChatKey,
			Timeout:               cfg.Timeout,
			MaxConcurrentRequests: cfg.MaxConcurrent,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = c
	case "gemini":
		c, err := gemini.NewGeminiClient(ctx, gemini.NewGeminiClientParams{
			APIKey:                cfg.GeminiKey,
			ChatModel:             cfg.ChatModel,
			EmbeddingModel:        cfg.EmbedModel,
			Dimensions:            cfg.EmbedDim,
			Timeout:               cfg.Timeout,
			MaxConcurrentRequests: cfg.MaxConcurrent,
		})
		if err != nil {
			return nil, err
		}
		client = c
	case "openai", "":
		client = openai.NewOpenAIClient(openai.NewOpenAIClientParams{
			ChatModel:             cfg.ChatModel,
			EmbeddingModel:        cfg.EmbedModel,
			Dimensions:            cfg.EmbedDim,
			ChatURL:               cfg.ChatURL,
			ChatKey:               cfg.ChatKey,
			EmbeddingURL:          cfg.EmbedURL,
			EmbeddingKey:          cfg.EmbedKey,
			Timeout:               cfg.Timeout,
			MaxConcurrentRequests: cfg.MaxConcurrent,
		})
	default:
		return nil, fmt.Errorf("unknown ai adapter %q", cfg.Adapter)
	}

	client = ai.NewRateLimitedClient(client, cfg.RateLimit, int(cfg.MaxConcurrent))
	client = embedcache.WrapClient(client, cfg.EmbedCacheSize, cfg.EmbedCacheTTL)
	logger.Debug("[AI] Client ready", "adapter", cfg.Adapter, "chat_model", cfg.ChatModel, "embed_model", cfg.EmbedModel)
	return client, nil
}

// GenerateOptions are the per-call defaults derived from the AI settings.
func GenerateOptions(cfg config.AI) []ai.GenerateOption {
	opts := []ai.GenerateOption{ai.WithRetries(cfg.MaxRetries)}
	if cfg.Timeout > 0 {
		opts = append(opts, ai.WithTimeout(cfg.Timeout))
	}
	return opts
}

// Stores are the persistence ports of a runner. Only Book is required.
type Stores struct {
	Book        store.BookStore
	Checkpoints store.CheckpointStore
	Pauses      store.PauseController
	Embeddings  store.EmbeddingStore
}

// NewRunner creates a pipeline runner whose model steps all go through client.
func NewRunner(client ai.Client, stores Stores, sink store.ProgressSink, cfg config.Config) (*pipeline.Runner, error) {
	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}
	opts := GenerateOptions(cfg.AI)
	pcfg.EmbedOptions = opts
	llm := pipeline.NewLLM(client, opts...)
	return pipeline.NewRunner(pipeline.Deps{
		Store:       stores.Book,
		Checkpoints: stores.Checkpoints,
		Pauses:      stores.Pauses,
		Embeddings:  stores.Embeddings,
		Sink:        sink,
		Embedder:    client,
		Names:       llm,
		Summarizer:  llm,
		Profiles:    llm,
		Quality:     llm,
		Classifier:  llm,
	}, pcfg)
}

// LogMetrics reports and resets the token usage of client.
func LogMetrics(client ai.Client, keyvals ...any) {
	m := client.GetMetrics()
	kv := append([]any{
		"input_tokens", m.InputTokens,
		"output_tokens", m.OutputTokens,
		"total_tokens", m.TotalTokens,
		"duration_ms", m.DurationMs,
	}, keyvals...)
	logger.Info("[AI] Metrics", kv...)
	client.ResetMetrics()
}
