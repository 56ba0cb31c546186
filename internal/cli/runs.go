package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/pgx"
)

func RunResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	out := newJSONLines(cmd.OutOrStdout())
	runner, logMetrics, err := sess.runner(ctx, out)
	if err != nil {
		return err
	}
	defer logMetrics()

	res, err := runner.Resume(ctx, args[0])
	if errors.Is(err, store.ErrCheckpointNotFound) {
		return fmt.Errorf("no checkpoint for run %s", args[0])
	}
	return report(out, res, err)
}

func RunPause(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	runID := args[0]
	cp, err := sess.stores.Checkpoints.LoadCheckpoint(ctx, runID)
	if errors.Is(err, store.ErrCheckpointNotFound) {
		return fmt.Errorf("no checkpoint for run %s", runID)
	}
	if err != nil {
		return err
	}
	if cp.Status != store.StatusRunning {
		return fmt.Errorf("run %s is %s, not running", runID, cp.Status)
	}
	if err := sess.stores.Pauses.RequestPause(ctx, runID); err != nil {
		return err
	}
	logger.Info("Pause requested", "run_id", runID, "book_id", cp.BookID)
	fmt.Fprintf(cmd.OutOrStdout(), "pause requested for run %s\n", runID)
	return nil
}

func RunMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	down, err := cmd.Flags().GetBool("down")
	if err != nil {
		return fmt.Errorf("failed to read --down flag: %w", err)
	}
	if down {
		return pgx.MigrateDown(cfg.DatabaseURL)
	}
	return pgx.Migrate(cfg.DatabaseURL)
}

type bookReport struct {
	BookID        string                   `json:"book_id"`
	Characters    []character.Character    `json:"characters"`
	Relationships []character.Relationship `json:"relationships"`
}

func RunCharacters(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	ctx := cmd.Context()
	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	bookID := args[0]
	chars, err := sess.stores.Book.List(ctx, bookID)
	if err != nil {
		return err
	}
	rels, err := sess.stores.Book.ListRelationships(ctx, bookID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(bookReport{BookID: bookID, Characters: chars, Relationships: rels})
}
