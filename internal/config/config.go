// Package config assembles the runtime configuration of the worker and the
// CLI from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/pipeline"
)

// tokenEncoding is used when chunk lengths are measured in tokens.
const tokenEncoding = "cl100k_base"

type AI struct {
	Adapter        string        `yaml:"adapter" validate:"oneof=openai ollama gemini"`
	ChatURL        string        `yaml:"chat_url"`
	ChatKey        string        `yaml:"chat_key"`
	ChatModel      string        `yaml:"chat_model" validate:"required"`
	EmbedURL       string        `yaml:"embed_url"`
	EmbedKey       string        `yaml:"embed_key"`
	EmbedModel     string        `yaml:"embed_model" validate:"required"`
	EmbedDim       int           `yaml:"embed_dim" validate:"gt=0"`
	MaxConcurrent  int64         `yaml:"max_concurrent" validate:"gte=1"`
	RateLimit      float64       `yaml:"rate_limit" validate:"gte=0"`
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxRetries     int           `yaml:"max_retries" validate:"gte=0"`
	EmbedCacheSize int           `yaml:"embed_cache_size" validate:"gte=0"`
	EmbedCacheTTL  time.Duration `yaml:"embed_cache_ttl" validate:"gte=0"`
	GeminiKey      string        `yaml:"gemini_key"`
}

type Pipeline struct {
	ChunkSize           int     `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap        int     `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	ChunkLength         string  `yaml:"chunk_length" validate:"oneof=runes tokens"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gt=0,lte=1"`
	QualityThreshold    float64 `yaml:"quality_threshold" validate:"gte=0,lte=1"`
	MaxSteps            int     `yaml:"max_steps" validate:"gt=0"`
	LanguageScript      string  `yaml:"language_script" validate:"required"`
	MinScriptRatio      float64 `yaml:"language_min_ratio" validate:"gte=0,lte=1"`
	ValidationSamples   int     `yaml:"validation_samples" validate:"gt=0"`
	SampleWords         int     `yaml:"validation_sample_words" validate:"gt=0"`
	SkipValidation      bool    `yaml:"skip_validation"`
}

type RabbitMQ struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
}

type S3 struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

type Worker struct {
	Concurrency      int           `yaml:"concurrency" validate:"gte=1"`
	RecoverySchedule string        `yaml:"recovery_schedule"`
	StaleAfter       time.Duration `yaml:"stale_after" validate:"gte=0"`
	LeaseTTL         time.Duration `yaml:"lease_ttl" validate:"gte=0"`
}

type Config struct {
	AI           AI       `yaml:"ai"`
	Pipeline     Pipeline `yaml:"pipeline"`
	RabbitMQ     RabbitMQ `yaml:"rabbitmq"`
	S3           S3       `yaml:"s3"`
	Worker       Worker   `yaml:"worker"`
	DatabaseURL  string   `yaml:"database_url"`
	CheckpointDB string   `yaml:"checkpoint_db"`
	Debug        bool     `yaml:"debug"`
	LogFormat    string   `yaml:"log_format" validate:"oneof=console json"`
}

// FromEnv reads every setting from the environment, falling back to the
// documented defaults.
func FromEnv() Config {
	return Config{
		AI: AI{
			Adapter:        util.GetEnvString("AI_ADAPTER", "openai"),
			ChatURL:        util.GetEnv("AI_CHAT_URL"),
			ChatKey:        util.GetEnv("AI_CHAT_KEY"),
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbedURL:       util.GetEnv("AI_EMBED_URL"),
			EmbedKey:       util.GetEnv("AI_EMBED_KEY"),
			EmbedModel:     util.GetEnv("AI_EMBED_MODEL"),
			EmbedDim:       util.GetEnvInt("AI_EMBED_DIM", 1536),
			MaxConcurrent:  int64(util.GetEnvInt("AI_MAX_CONCURRENT", 4)),
			RateLimit:      util.GetEnvNumeric("AI_RATE_LIMIT", 0),
			Timeout:        util.GetEnvDuration("AI_TIMEOUT", 30*time.Second),
			MaxRetries:     util.GetEnvInt("AI_MAX_RETRIES", 3),
			EmbedCacheSize: util.GetEnvInt("AI_EMBED_CACHE_SIZE", 1000),
			EmbedCacheTTL:  util.GetEnvDuration("AI_EMBED_CACHE_TTL", time.Hour),
			GeminiKey:      util.GetEnv("GEMINI_API_KEY"),
		},
		Pipeline: Pipeline{
			ChunkSize:           util.GetEnvInt("CHUNK_SIZE", chunker.DefaultSize),
			ChunkOverlap:        util.GetEnvInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
			ChunkLength:         util.GetEnvString("CHUNK_LENGTH", "runes"),
			SimilarityThreshold: util.GetEnvNumeric("SIMILARITY_THRESHOLD", character.DefaultThreshold),
			QualityThreshold:    util.GetEnvNumeric("QUALITY_THRESHOLD", 0.6),
			MaxSteps:            util.GetEnvInt("MAX_STEPS", 1000),
			LanguageScript:      util.GetEnvString("LANGUAGE_SCRIPT", "arabic"),
			MinScriptRatio:      util.GetEnvNumeric("LANGUAGE_MIN_RATIO", 0.5),
			ValidationSamples:   util.GetEnvInt("VALIDATION_SAMPLES", 5),
			SampleWords:         util.GetEnvInt("VALIDATION_SAMPLE_WORDS", 30),
			SkipValidation:      util.GetEnvBool("SKIP_VALIDATION", false),
		},
		RabbitMQ: RabbitMQ{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		},
		S3: S3{
			Region:    util.GetEnv("AWS_REGION"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnvString("AWS_BUCKET", "kiwi"),
		},
		Worker: Worker{
			Concurrency:      util.GetEnvInt("WORKER_CONCURRENCY", 2),
			RecoverySchedule: util.GetEnvString("RECOVERY_SCHEDULE", "@every 5m"),
			StaleAfter:       util.GetEnvDuration("STALE_AFTER", 15*time.Minute),
			LeaseTTL:         util.GetEnvDuration("LEASE_TTL", 2*time.Minute),
		},
		DatabaseURL:  util.GetEnv("DATABASE_URL"),
		CheckpointDB: util.GetEnvString("CHECKPOINT_DB", "kiwi-checkpoints.db"),
		Debug:        util.GetEnvBool("DEBUG", false),
		LogFormat:    util.GetEnvString("LOG_FORMAT", "console"),
	}
}

// Load reads the environment, overlays the YAML file at path when path is
// not empty and validates the result.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.Overlay(raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Overlay replaces the settings present in the YAML document.
func (c *Config) Overlay(raw []byte) error {
	return yaml.Unmarshal(raw, c)
}

func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// AMQPURL is the connection string of the message broker.
func (c Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

// PipelineConfig translates the settings into runner configuration.
func (c Config) PipelineConfig() (pipeline.Config, error) {
	p := c.Pipeline
	out := pipeline.DefaultConfig()
	out.MaxSteps = p.MaxSteps
	out.SimilarityThreshold = p.SimilarityThreshold
	out.QualityThreshold = p.QualityThreshold
	out.LanguageScript = p.LanguageScript
	out.MinScriptRatio = p.MinScriptRatio
	out.ValidationSamples = p.ValidationSamples
	out.SampleWords = p.SampleWords
	out.SkipValidation = p.SkipValidation
	out.Chunk.Size = p.ChunkSize
	out.Chunk.Overlap = p.ChunkOverlap

	if p.ChunkLength == "tokens" {
		length, err := chunker.TokenLength(tokenEncoding)
		if err != nil {
			return pipeline.Config{}, err
		}
		out.Chunk.Length = length
	}
	return out, nil
}
