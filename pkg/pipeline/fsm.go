package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a state of the analysis state machine.
type Stage string

const (
	StageLanguageCheck   Stage = "language_check"
	StageQualityAssess   Stage = "quality_assess"
	StageClassify        Stage = "classify"
	StageClean           Stage = "clean"
	StageStripMetadata   Stage = "strip_metadata"
	StageChunk           Stage = "chunk"
	StageDetectNames     Stage = "detect_names"
	StageSummarize       Stage = "summarize"
	StageRedetectNames   Stage = "redetect_names"
	StageResolveProfiles Stage = "resolve_profiles"
	StageMergeProfiles   Stage = "merge_profiles"
	StageAdvanceChunk    Stage = "advance_chunk"
	StageTerminal        Stage = "terminal"
)

// Event is the outcome of executing a stage.
type Event string

const (
	EventPassed         Event = "passed"
	EventFailed         Event = "failed"
	EventDone           Event = "done"
	EventNamesFound     Event = "names_found"
	EventNoNames        Event = "no_names"
	EventSummarized     Event = "summarized"
	EventContentBlocked Event = "content_blocked"
	EventSummaryFailed  Event = "summary_failed"
	EventSkipped        Event = "skipped"
	EventMoreChunks     Event = "more_chunks"
	EventNoMoreChunks   Event = "no_more_chunks"
	EventFatal          Event = "fatal"
)

// Effect is a side effect the driver applies after a transition.
type Effect string

const (
	EffectCheckpoint       Effect = "checkpoint"
	EffectEmitChunkReady   Effect = "emit_chunk_ready"
	EffectEmitValidation   Effect = "emit_validation"
	EffectClearProhibited  Effect = "clear_prohibited"
	EffectFlagChunkSkipped Effect = "flag_chunk_skipped"
	EffectEmitComplete     Effect = "emit_complete"
)

const (
	// EntrySteps is the number of transitions before the first chunk.
	EntrySteps = 6
	// StepsPerChunk is the longest path through the chunk loop.
	StepsPerChunk = 6
)

// MaxTransitions is the structural bound on transitions for a book of
// totalChunks chunks.
func MaxTransitions(totalChunks int) int {
	return EntrySteps + StepsPerChunk*max(totalChunks, 1)
}

var ErrInvalidTransition = errors.New("invalid transition")

type transitionKey struct {
	stage Stage
	event Event
}

type transition struct {
	next    Stage
	effects []Effect
}

var transitions = map[transitionKey]transition{
	{StageLanguageCheck, EventPassed}: {StageQualityAssess, []Effect{EffectEmitValidation}},
	{StageLanguageCheck, EventFailed}: {StageTerminal, []Effect{EffectEmitValidation, EffectCheckpoint}},
	{StageQualityAssess, EventPassed}: {StageClassify, []Effect{EffectEmitValidation}},
	{StageQualityAssess, EventFailed}: {StageTerminal, []Effect{EffectEmitValidation, EffectCheckpoint}},
	{StageClassify, EventPassed}:      {StageClean, []Effect{EffectEmitValidation}},
	{StageClassify, EventFailed}:      {StageTerminal, []Effect{EffectEmitValidation, EffectCheckpoint}},

	{StageClean, EventDone}:         {StageStripMetadata, nil},
	{StageStripMetadata, EventDone}: {StageChunk, nil},
	{StageChunk, EventDone}:         {StageDetectNames, []Effect{EffectCheckpoint}},

	{StageDetectNames, EventNamesFound}:     {StageSummarize, nil},
	{StageDetectNames, EventNoNames}:        {StageAdvanceChunk, nil},
	{StageDetectNames, EventContentBlocked}: {StageAdvanceChunk, []Effect{EffectFlagChunkSkipped}},

	{StageSummarize, EventSummarized}:     {StageRedetectNames, nil},
	{StageSummarize, EventContentBlocked}: {StageResolveProfiles, []Effect{EffectClearProhibited}},
	{StageSummarize, EventSummaryFailed}:  {StageAdvanceChunk, []Effect{EffectFlagChunkSkipped}},

	{StageRedetectNames, EventDone}: {StageResolveProfiles, nil},

	{StageResolveProfiles, EventDone}:           {StageMergeProfiles, nil},
	{StageResolveProfiles, EventContentBlocked}: {StageAdvanceChunk, []Effect{EffectFlagChunkSkipped}},
	{StageResolveProfiles, EventSkipped}:        {StageAdvanceChunk, nil},

	{StageMergeProfiles, EventDone}: {StageAdvanceChunk, nil},

	{StageAdvanceChunk, EventMoreChunks}:   {StageDetectNames, []Effect{EffectEmitChunkReady, EffectCheckpoint}},
	{StageAdvanceChunk, EventNoMoreChunks}: {StageTerminal, []Effect{EffectEmitChunkReady, EffectEmitComplete, EffectCheckpoint}},
}

// Transition returns the stage that follows stage on event and the effects
// to apply. It has no side effects. A fatal event ends every non-terminal
// stage.
func Transition(stage Stage, event Event) (Stage, []Effect, error) {
	if stage == StageTerminal {
		return stage, nil, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, stage)
	}
	if event == EventFatal {
		return StageTerminal, []Effect{EffectCheckpoint}, nil
	}
	t, ok := transitions[transitionKey{stage, event}]
	if !ok {
		return stage, nil, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, stage)
	}
	effects := make([]Effect, len(t.effects))
	copy(effects, t.effects)
	return t.next, effects, nil
}

// IsChunkStage reports whether stage belongs to the per-chunk loop.
func IsChunkStage(stage Stage) bool {
	switch stage {
	case StageDetectNames, StageSummarize, StageRedetectNames,
		StageResolveProfiles, StageMergeProfiles, StageAdvanceChunk:
		return true
	}
	return false
}
