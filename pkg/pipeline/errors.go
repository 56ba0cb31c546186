package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStepLimit ends a run whose transition count exceeds its bound.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrPaused is returned when a run stops at a chunk boundary on request.
	ErrPaused = errors.New("run paused")
	// ErrRunFinished is returned when resuming a run that already ended.
	ErrRunFinished = errors.New("run already finished")
)

// ValidationError reports the gate that rejected a document.
type ValidationError struct {
	Stage  Stage
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Stage, e.Reason)
}

// RunError reports where a failed run stopped.
type RunError struct {
	Stage      Stage
	ChunkIndex int
	Err        error
}

func (e *RunError) Error() string {
	if IsChunkStage(e.Stage) {
		return fmt.Sprintf("run failed at %s (chunk %d): %v", e.Stage, e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
