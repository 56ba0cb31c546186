package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/loader"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/pipeline"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

// Runner executes and resumes analysis runs.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
	Resume(ctx context.Context, runID string) (pipeline.Result, error)
}

// Locker grants exclusive access to a key for the duration of fn.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Handler turns queue messages into runs. One book never has two runs
// executing at the same time across workers.
type Handler struct {
	Runner      Runner
	Loader      loader.BookLoader
	Checkpoints store.CheckpointStore
	Locks       Locker
	LeaseTTL    time.Duration
	WorkerName  string
}

// Handle dispatches a message body by queue name. A nil error means the
// message is done, including runs that were rejected, paused or finished.
func (h *Handler) Handle(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case AnalyzeQueue:
		return h.HandleAnalyze(ctx, body)
	case ResumeQueue:
		return h.HandleResume(ctx, body)
	}
	return fmt.Errorf("no handler for queue %s", queueName)
}

func (h *Handler) HandleAnalyze(ctx context.Context, body []byte) error {
	msg, err := Decode[AnalyzeBookMsg](body)
	if err != nil {
		return err
	}
	file := loader.BookFile{ID: msg.RunID, BookID: msg.BookID, Path: msg.FileKey, Loader: h.Loader}

	return h.withBook(ctx, msg.BookID, func(ctx context.Context) error {
		text, err := file.GetText(ctx)
		if err != nil {
			return err
		}
		logger.Info("[Queue] Analyzing book", "run_id", msg.RunID, "book_id", msg.BookID, "file", msg.FileKey)
		res, err := h.Runner.Run(ctx, pipeline.Job{RunID: msg.RunID, BookID: msg.BookID, Text: text})
		return settle(res, err)
	})
}

func (h *Handler) HandleResume(ctx context.Context, body []byte) error {
	msg, err := Decode[ResumeRunMsg](body)
	if err != nil {
		return err
	}
	if h.Checkpoints == nil {
		return errors.New("resume needs a checkpoint store")
	}
	cp, err := h.Checkpoints.LoadCheckpoint(ctx, msg.RunID)
	if errors.Is(err, store.ErrCheckpointNotFound) {
		logger.Warn("[Queue] Dropping resume of unknown run", "run_id", msg.RunID)
		return nil
	}
	if err != nil {
		return err
	}

	return h.withBook(ctx, cp.BookID, func(ctx context.Context) error {
		logger.Info("[Queue] Resuming run", "run_id", msg.RunID, "book_id", cp.BookID, "reason", msg.Message)
		res, err := h.Runner.Resume(ctx, msg.RunID)
		return settle(res, err)
	})
}

func (h *Handler) withBook(ctx context.Context, bookID string, fn func(ctx context.Context) error) error {
	if h.Locks == nil {
		return fn(ctx)
	}
	opts := leaselock.Options{TTL: h.LeaseTTL, Owner: h.WorkerName}
	err := h.Locks.WithLease(ctx, leaselock.BookKey(bookID), opts, fn)
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Book is busy, retrying later", "book_id", bookID)
	}
	return err
}

// settle decides whether a run outcome should be retried.
func settle(res pipeline.Result, err error) error {
	var verr *pipeline.ValidationError
	switch {
	case err == nil:
		logger.Info("[Queue] Run completed", "run_id", res.RunID, "chunks", res.TotalChunks, "characters_touched", res.CharactersTouched)
		return nil
	case errors.As(err, &verr):
		logger.Info("[Queue] Book rejected", "run_id", res.RunID, "gate", verr.Stage, "reason", verr.Reason)
		return nil
	case errors.Is(err, pipeline.ErrPaused):
		logger.Info("[Queue] Run paused", "run_id", res.RunID, "chunk", res.ChunkIndex)
		return nil
	case errors.Is(err, pipeline.ErrRunFinished):
		logger.Info("[Queue] Run already finished", "run_id", res.RunID)
		return nil
	}
	return err
}
