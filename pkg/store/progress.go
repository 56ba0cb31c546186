package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
)

type EventType string

const (
	EventValidationResult      EventType = "validation_result"
	EventPreprocessingComplete EventType = "preprocessing_complete"
	EventChunkReady            EventType = "chunk_ready"
	EventChunkSkipped          EventType = "chunk_skipped"
	EventContentBlocked        EventType = "content_blocked"
	EventAnalysisComplete      EventType = "analysis_complete"
	EventWorkflowPaused        EventType = "workflow_paused"
	EventWorkflowResumed       EventType = "workflow_resumed"
	EventUnexpectedError       EventType = "unexpected_error"
)

// Event is a progress notification of a run.
type Event struct {
	Type        EventType         `json:"type"`
	RunID       string            `json:"run_id"`
	BookID      string            `json:"book_id"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	Message     string            `json:"message,omitempty"`
	Progress    *util.RunProgress `json:"progress,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
	Time        time.Time         `json:"time"`
}

// ProgressSink receives progress events. Errors are logged by the caller
// and never abort a run.
type ProgressSink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) error { return nil }

// NopSink discards every event.
var NopSink ProgressSink = nopSink{}

// MultiSink fans an event out to every sink and joins their errors.
func MultiSink(sinks ...ProgressSink) ProgressSink {
	return SinkFunc(func(ctx context.Context, event Event) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Emit(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the event types in emission order.
func (r *Recorder) Types() []EventType {
	events := r.Events()
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
