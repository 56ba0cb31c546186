package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/internal/config"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/memory"
)

func testConfig() config.Config {
	return config.Config{
		AI: config.AI{
			Adapter:       "openai",
			ChatModel:     "chat",
			EmbedModel:    "embed",
			EmbedDim:      8,
			MaxConcurrent: 2,
			Timeout:       time.Second,
			MaxRetries:    1,
		},
		Pipeline: config.Pipeline{
			ChunkSize:           100,
			ChunkOverlap:        10,
			ChunkLength:         "runes",
			SimilarityThreshold: 0.9,
			QualityThreshold:    0.6,
			MaxSteps:            100,
			LanguageScript:      "arabic",
			MinScriptRatio:      0.5,
			ValidationSamples:   2,
			SampleWords:         10,
		},
		LogFormat: "console",
	}
}

func TestNewAIClient(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	client, err := NewAIClient(ctx, cfg.AI)
	if err != nil || client == nil {
		t.Fatalf("expected openai client, got %v %v", client, err)
	}

	cfg.AI.Adapter = "gemini"
	if _, err := NewAIClient(ctx, cfg.AI); err == nil {
		t.Fatalf("expected error for gemini without api key")
	}

	cfg.AI.Adapter = "bard"
	if _, err := NewAIClient(ctx, cfg.AI); err == nil {
		t.Fatalf("expected error for unknown adapter")
	}
}

func TestGenerateOptions(t *testing.T) {
	cfg := testConfig()
	got := ai.ApplyOptions(ai.GenerateOptions{}, GenerateOptions(cfg.AI)...)
	if got.Retries != 1 || got.Timeout != time.Second {
		t.Fatalf("expected retries 1 and timeout 1s, got %+v", got)
	}
}

func TestNewRunner(t *testing.T) {
	cfg := testConfig()
	client, err := NewAIClient(context.Background(), cfg.AI)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	mem := memory.New()
	stores := Stores{Book: mem, Checkpoints: mem, Pauses: mem, Embeddings: mem}
	if _, err := NewRunner(client, stores, store.NopSink, cfg); err != nil {
		t.Fatalf("expected runner, got %v", err)
	}
	if _, err := NewRunner(client, Stores{}, store.NopSink, cfg); err == nil {
		t.Fatalf("expected error without a book store")
	}
}

func TestInitLogger(t *testing.T) {
	cfg := testConfig()
	if err := InitLogger(cfg, "test"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	cfg.LogFormat = "json"
	if err := InitLogger(cfg, "test"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
