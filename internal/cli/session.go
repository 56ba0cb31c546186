package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/kiwi/characters/internal/bootstrap"
	"github.com/OFFIS-RIT/kiwi/characters/internal/config"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/pipeline"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/memory"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/pgx"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/sqlite"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

// newAIClient is replaced in tests.
var newAIClient = bootstrap.NewAIClient

func OptionalStringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd == nil || cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}

// loadConfig reads the environment and the --config overlay and installs the
// logger. Model settings are validated only by commands that run books.
func loadConfig(cmd *cobra.Command, validate bool) (config.Config, error) {
	path, err := OptionalStringFlag(cmd, "config")
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.FromEnv()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.Overlay(raw); err != nil {
			return config.Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	if err := bootstrap.InitLogger(cfg, "kiwi"); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session holds the stores of one command. Without a database the book data
// lives in memory and only checkpoints and pause flags survive the process.
type session struct {
	cfg     config.Config
	stores  bootstrap.Stores
	closers []func()
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	s := &session{cfg: cfg}
	if cfg.DatabaseURL != "" {
		if err := pgx.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		db := pgx.New(pool)
		s.stores = bootstrap.Stores{Book: db, Checkpoints: db, Pauses: db, Embeddings: db}
		return s, nil
	}

	cp, err := sqlite.Open(ctx, cfg.CheckpointDB)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() {
		if err := cp.Close(); err != nil {
			logger.Warn("Failed to close checkpoint database", "err", err)
		}
	})
	mem := memory.New()
	s.stores = bootstrap.Stores{Book: mem, Checkpoints: cp, Pauses: cp, Embeddings: mem}
	logger.Debug("Using in-memory book store", "checkpoints", cfg.CheckpointDB)
	return s, nil
}

func (s *session) runner(ctx context.Context, sink store.ProgressSink) (*pipeline.Runner, func(), error) {
	client, err := newAIClient(ctx, s.cfg.AI)
	if err != nil {
		return nil, nil, err
	}
	runner, err := bootstrap.NewRunner(client, s.stores, sink, s.cfg)
	if err != nil {
		return nil, nil, err
	}
	return runner, func() { bootstrap.LogMetrics(client) }, nil
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// jsonLines writes one JSON document per line and is safe for concurrent
// runs. It doubles as the progress sink of the CLI.
type jsonLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONLines(w io.Writer) *jsonLines {
	return &jsonLines{enc: json.NewEncoder(w)}
}

func (j *jsonLines) write(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(v)
}

func (j *jsonLines) Emit(_ context.Context, e store.Event) error {
	return j.write(e)
}

var _ store.ProgressSink = (*jsonLines)(nil)

// resultLine is the last line printed for a run.
type resultLine struct {
	Type string `json:"type"`
	pipeline.Result
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

const resultType = "run_result"

// outcome names how a run ended. Only "failed" makes the command fail.
func outcome(err error) string {
	var verr *pipeline.ValidationError
	switch {
	case err == nil:
		return "completed"
	case errors.As(err, &verr):
		return "rejected"
	case errors.Is(err, pipeline.ErrPaused):
		return "paused"
	case errors.Is(err, pipeline.ErrRunFinished):
		return "finished"
	}
	return "failed"
}

func report(out *jsonLines, res pipeline.Result, err error) error {
	line := resultLine{Type: resultType, Result: res, Outcome: outcome(err)}
	if err != nil {
		line.Error = err.Error()
	}
	if werr := out.write(line); werr != nil {
		return werr
	}
	if line.Outcome == "failed" {
		return err
	}
	return nil
}
