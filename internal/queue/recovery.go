package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

// RecoverStaleRuns republishes resume messages for runs whose checkpoint has
// not moved since olderThan, e.g. because their worker died.
func RecoverStaleRuns(ctx context.Context, checkpoints store.CheckpointStore, ch Publisher, olderThan time.Time) (int, error) {
	stale, err := checkpoints.ListStale(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("list stale runs: %w", err)
	}
	if len(stale) == 0 {
		logger.Debug("[Queue] No stale runs found")
		return 0, nil
	}
	logger.Info("[Queue] Found stale runs", "count", len(stale))

	recovered := 0
	for _, cp := range stale {
		data, err := json.Marshal(ResumeRunMsg{RunID: cp.RunID, Message: "Recovered stale run"})
		if err != nil {
			logger.Error("[Queue] Failed to marshal resume message", "run_id", cp.RunID, "err", err)
			continue
		}
		if err := PublishFIFO(ch, ResumeQueue, data); err != nil {
			logger.Error("[Queue] Failed to republish run", "run_id", cp.RunID, "err", err)
			continue
		}
		recovered++
		logger.Info("[Queue] Recovered stale run", "run_id", cp.RunID, "book_id", cp.BookID)
	}
	return recovered, nil
}

// RecoveryJob runs RecoverStaleRuns on a schedule.
type RecoveryJob struct {
	Checkpoints store.CheckpointStore
	Publisher   Publisher
	StaleAfter  time.Duration
	now         func() time.Time
}

func (j *RecoveryJob) Name() string {
	return "recover_stale_runs"
}

func (j *RecoveryJob) Run(ctx context.Context) error {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	_, err := RecoverStaleRuns(ctx, j.Checkpoints, j.Publisher, now().Add(-j.StaleAfter))
	return err
}
