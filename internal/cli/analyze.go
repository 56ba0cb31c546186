package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/loader"
	fileloader "github.com/OFFIS-RIT/kiwi/characters/pkg/loader/io"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/pipeline"
)

type book struct {
	runID  string
	bookID string
	path   string
}

func RunAnalyze(cmd *cobra.Command, args []string) error {
	parallel, err := cmd.Flags().GetInt("parallel")
	if err != nil {
		return fmt.Errorf("failed to read --parallel flag: %w", err)
	}
	if parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
	}
	books, err := booksFromArgs(cmd, args)
	if err != nil {
		return err
	}

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

	files := fileloader.NewFileLoader("")
	failures := make([]error, len(books))

	g := errgroup.Group{}
	g.SetLimit(parallel)
	for i, b := range books {
		g.Go(func() error {
			file := loader.BookFile{ID: b.runID, BookID: b.bookID, Path: b.path, Loader: files}
			text, err := file.GetText(ctx)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", b.path, err)
				return nil
			}
			logger.Info("Analyzing book", "file", b.path, "book_id", b.bookID, "run_id", b.runID)
			res, err := runner.Run(ctx, pipeline.Job{RunID: b.runID, BookID: b.bookID, Text: text})
			if res.RunID == "" {
				res.RunID, res.BookID = b.runID, b.bookID
			}
			if err := report(out, res, err); err != nil {
				failures[i] = fmt.Errorf("%s: %w", b.path, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}

func booksFromArgs(cmd *cobra.Command, args []string) ([]book, error) {
	bookID, err := OptionalStringFlag(cmd, "book-id")
	if err != nil {
		return nil, err
	}
	runID, err := OptionalStringFlag(cmd, "run-id")
	if err != nil {
		return nil, err
	}
	if len(args) > 1 && (bookID != "" || runID != "") {
		return nil, errors.New("--book-id and --run-id need exactly one file")
	}
	if runID != "" && !util.IsRunID(runID) {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}

	books := make([]book, 0, len(args))
	for _, path := range args {
		b := book{runID: runID, bookID: bookID, path: path}
		if b.bookID == "" {
			name := filepath.Base(path)
			b.bookID = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if b.runID == "" {
			b.runID = util.NewRunID()
		}
		books = append(books, b)
	}
	return books, nil
}
