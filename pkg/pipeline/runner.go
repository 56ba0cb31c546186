package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/internal/timing"
	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

const defaultMaxSteps = 1000

type Config struct {
	MaxSteps            int
	Chunk               chunker.Options
	Metadata            chunker.MetadataOptions
	SimilarityThreshold float64
	QualityThreshold    float64
	LanguageScript      string
	MinScriptRatio      float64
	ValidationSamples   int
	SampleWords         int
	SkipValidation      bool
	// EmbedOptions set the timeout and retries of embedding calls.
	EmbedOptions []ai.GenerateOption
	// Seed makes validation sampling reproducible when non-zero.
	Seed uint64
}

func DefaultConfig() Config {
	return Config{
		MaxSteps:            defaultMaxSteps,
		Chunk:               chunker.DefaultOptions(),
		Metadata:            chunker.DefaultMetadataOptions(),
		SimilarityThreshold: character.DefaultThreshold,
		QualityThreshold:    0.6,
		LanguageScript:      "arabic",
		MinScriptRatio:      0.5,
		ValidationSamples:   5,
		SampleWords:         30,
	}
}

// Deps are the collaborators of a Runner. Checkpoints, Pauses, Embeddings
// and Sink are optional.
type Deps struct {
	Store       store.BookStore
	Checkpoints store.CheckpointStore
	Pauses      store.PauseController
	Embeddings  store.EmbeddingStore
	Sink        store.ProgressSink

	Embedder   ai.Embedder
	Names      NameExtractor
	Summarizer Summarizer
	Profiles   ProfileDiffer
	Quality    QualityAssessor
	Classifier Classifier
}

// Job is one book to analyze. An empty RunID gets a fresh one.
type Job struct {
	RunID  string
	BookID string
	Text   string
}

// Result describes where a run ended.
type Result struct {
	RunID             string          `json:"run_id"`
	BookID            string          `json:"book_id"`
	Status            store.RunStatus `json:"status"`
	Stage             Stage           `json:"stage"`
	ChunkIndex        int             `json:"chunk_index"`
	TotalChunks       int             `json:"total_chunks"`
	Reason            string          `json:"reason,omitempty"`
	Steps             int             `json:"steps"`
	Validation        []GateResult    `json:"validation,omitempty"`
	SkippedChunks     []int           `json:"skipped_chunks,omitempty"`
	CharactersTouched int             `json:"characters_touched"`
}

// Runner drives books through the analysis state machine. A Runner is safe
// for concurrent use; every run gets its own state and embedding cache.
type Runner struct {
	deps       Deps
	cfg        Config
	transition func(Stage, Event) (Stage, []Effect, error)
	now        func() time.Time
}

func NewRunner(deps Deps, cfg Config) (*Runner, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case deps.Names == nil || deps.Summarizer == nil || deps.Profiles == nil:
		return nil, errors.New("pipeline: name extractor, summarizer and profile differ are required")
	case !cfg.SkipValidation && (deps.Quality == nil || deps.Classifier == nil):
		return nil, errors.New("pipeline: quality assessor and classifier are required unless validation is skipped")
	}
	if !cfg.SkipValidation {
		if _, ok := LookupScript(cfg.LanguageScript); !ok {
			return nil, fmt.Errorf("pipeline: unknown script %q", cfg.LanguageScript)
		}
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = character.DefaultThreshold
	}
	defaults := DefaultConfig()
	if cfg.ValidationSamples <= 0 {
		cfg.ValidationSamples = defaults.ValidationSamples
	}
	if cfg.SampleWords <= 0 {
		cfg.SampleWords = defaults.SampleWords
	}
	deps.Embedder = ai.NewRetryingEmbedder(deps.Embedder, cfg.EmbedOptions...)
	if deps.Sink == nil {
		deps.Sink = store.NopSink
	}
	return &Runner{deps: deps, cfg: cfg, transition: Transition, now: time.Now}, nil
}

// Run analyzes a book from the start. When a resumable checkpoint already
// exists for the run id, the run continues from it instead.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	if job.BookID == "" {
		return Result{}, errors.New("pipeline: book id is required")
	}
	if job.RunID == "" {
		job.RunID = util.NewRunID()
	}

	if r.deps.Checkpoints != nil {
		_, err := r.deps.Checkpoints.LoadCheckpoint(ctx, job.RunID)
		switch {
		case err == nil:
			logger.Info("[Pipeline] Existing checkpoint found, resuming", "run_id", job.RunID)
			return r.Resume(ctx, job.RunID)
		case !errors.Is(err, store.ErrCheckpointNotFound):
			return Result{RunID: job.RunID, BookID: job.BookID}, fmt.Errorf("load checkpoint: %w", err)
		}
	}

	ru := r.newRun(NewSessionState(job.RunID, job.BookID))
	ru.text = job.Text
	logger.Info("[Pipeline] Starting run", "run_id", job.RunID, "book_id", job.BookID)
	return ru.loop(ctx)
}

// Resume continues a run from its last chunk boundary checkpoint.
func (r *Runner) Resume(ctx context.Context, runID string) (Result, error) {
	if r.deps.Checkpoints == nil {
		return Result{RunID: runID}, errors.New("pipeline: resume needs a checkpoint store")
	}
	cp, err := r.deps.Checkpoints.LoadCheckpoint(ctx, runID)
	if err != nil {
		return Result{RunID: runID}, fmt.Errorf("load checkpoint: %w", err)
	}
	state, err := UnmarshalSessionState(cp.State)
	if err != nil {
		return Result{RunID: runID, BookID: cp.BookID}, err
	}
	if cp.Status == store.StatusCompleted || cp.Status == store.StatusValidationFailed {
		res := resultFromState(state, cp.Status)
		return res, ErrRunFinished
	}
	if state.TotalChunks == 0 {
		return resultFromState(state, cp.Status), fmt.Errorf("pipeline: run %s has no chunk checkpoint", runID)
	}

	chunks := make([]chunker.Chunk, 0, state.TotalChunks)
	for i := range state.TotalChunks {
		c, err := r.deps.Store.Get(ctx, state.BookID, i)
		if err != nil {
			return resultFromState(state, cp.Status), fmt.Errorf("load chunk %d: %w", i, err)
		}
		if c == nil {
			return resultFromState(state, cp.Status), fmt.Errorf("pipeline: chunk %d of book %s is missing", i, state.BookID)
		}
		chunks = append(chunks, *c)
	}

	// Work done after the boundary was discarded, so the chunk restarts.
	if state.Stage != StageTerminal {
		state.Stage = StageDetectNames
	}
	state.ProhibitedContent = false
	state.ChunkBlocked = false

	ru := r.newRun(state)
	ru.seq = chunker.NewSequence(chunks)
	ru.boundary = cp.State
	ru.limit = max(r.cfg.MaxSteps, MaxTransitions(state.TotalChunks))

	if r.deps.Pauses != nil {
		if err := r.deps.Pauses.ClearPause(ctx, runID); err != nil {
			logger.Warn("[Pipeline] Failed to clear pause flag", "run_id", runID, "err", err)
		}
	}
	if r.deps.Embeddings != nil {
		if _, err := ru.cache.Warm(ctx, r.deps.Embeddings, state.BookID); err != nil {
			logger.Warn("[Pipeline] Failed to warm embedding cache", "run_id", runID, "err", err)
		}
	}

	logger.Info("[Pipeline] Resuming run", "run_id", runID, "book_id", state.BookID, "chunk", state.ChunkIndex, "total", state.TotalChunks)
	ru.emit(ctx, ru.event(store.EventWorkflowResumed))
	return ru.loop(ctx)
}

// run is the mutable context of one execution of the state machine.
type run struct {
	r         *Runner
	state     *SessionState
	text      string
	seq       *chunker.Sequence
	cache     *character.EmbeddingCache
	resolver  *character.Resolver
	extractor *character.Extractor
	timing    *timing.Tracker
	rng       *rand.Rand

	// pending lists the characters of the chunk in first-touched order,
	// latest holds their merged, not yet persisted profiles.
	pending []string
	latest  map[string]character.Character

	status     store.RunStatus
	failure    error
	skipReason string
	boundary   []byte
	completed  int
	steps      int
	limit      int
	started    time.Time
}

func (r *Runner) newRun(state *SessionState) *run {
	var saver character.EmbeddingSaver
	if r.deps.Embeddings != nil {
		saver = r.deps.Embeddings
	}
	cache := character.NewEmbeddingCache(r.deps.Embedder, saver)

	var rng *rand.Rand
	if r.cfg.Seed != 0 {
		rng = rand.New(rand.NewPCG(r.cfg.Seed, r.cfg.Seed))
	}

	return &run{
		r:     r,
		state: state,
		cache: cache,
		resolver: character.NewResolver(character.NewResolverParams{
			Embedder:  r.deps.Embedder,
			Cache:     cache,
			Creator:   r.deps.Store,
			Threshold: r.cfg.SimilarityThreshold,
		}),
		extractor: character.NewExtractor(r.deps.Store, r.deps.Store),
		timing:    timing.NewTracker(),
		rng:       rng,
		latest:    make(map[string]character.Character),
		limit:     max(r.cfg.MaxSteps, MaxTransitions(0)),
		started:   r.now(),
	}
}

func (ru *run) loop(ctx context.Context) (Result, error) {
	defer ru.timing.Log(ru.state.RunID)

	for ru.state.Stage != StageTerminal {
		if ru.steps >= ru.limit {
			ru.fail(ErrStepLimit)
			ru.state.Stage = StageTerminal
			ru.checkpoint(ctx)
			break
		}
		if err := ctx.Err(); err != nil {
			return ru.interrupted(ctx, err)
		}
		if ru.state.Stage == StageDetectNames && ru.pauseRequested(ctx) {
			return ru.pause(ctx)
		}

		stage := ru.state.Stage
		stop := ru.timing.Start(string(stage))
		event, err := ru.execute(ctx, stage)
		stop()
		if err != nil {
			if ctx.Err() != nil {
				return ru.interrupted(ctx, ctx.Err())
			}
			ru.fail(err)
			event = EventFatal
		}

		next, effects, err := ru.r.transition(stage, event)
		if err != nil {
			ru.fail(err)
			next, effects = StageTerminal, []Effect{EffectCheckpoint}
		}
		ru.steps++
		logger.Debug("[Pipeline] Transition", "run_id", ru.state.RunID, "from", stage, "event", event, "to", next)
		ru.state.Stage = next
		ru.apply(ctx, effects)
	}

	res := ru.result()
	switch res.Status {
	case store.StatusValidationFailed:
		gate, _ := ru.state.ValidationFailure()
		logger.Info("[Pipeline] Document rejected", "run_id", res.RunID, "gate", gate.Gate, "reason", gate.Reason)
		return res, &ValidationError{Stage: gate.Gate, Reason: gate.Reason}
	case store.StatusFailed:
		logger.Error("[Pipeline] Run failed", "run_id", res.RunID, "stage", res.Stage, "chunk", res.ChunkIndex, "err", ru.failure)
		return res, ru.failure
	default:
		logger.Info("[Pipeline] Run completed", "run_id", res.RunID, "chunks", res.TotalChunks, "steps", res.Steps, "characters_touched", res.CharactersTouched)
		return res, nil
	}
}

func (ru *run) fail(err error) {
	if ru.failure != nil {
		return
	}
	stage := ru.state.Stage
	ru.failure = &RunError{Stage: stage, ChunkIndex: ru.state.ChunkIndex, Err: err}
	ru.status = store.StatusFailed

	e := ru.event(store.EventUnexpectedError)
	e.Message = err.Error()
	e.Data = map[string]any{"stage": string(stage)}
	ru.emit(context.Background(), e)
}

// interrupted handles cancellation: the in-flight chunk is discarded and the
// last boundary stays the resume point.
func (ru *run) interrupted(ctx context.Context, err error) (Result, error) {
	logger.Warn("[Pipeline] Run interrupted", "run_id", ru.state.RunID, "stage", ru.state.Stage, "chunk", ru.state.ChunkIndex)
	ru.status = store.StatusRunning
	if ru.boundary != nil {
		ru.saveCheckpoint(context.WithoutCancel(ctx), store.StatusRunning, ru.boundary)
	}
	return ru.result(), err
}

func (ru *run) pauseRequested(ctx context.Context) bool {
	if ru.r.deps.Pauses == nil {
		return false
	}
	paused, err := ru.r.deps.Pauses.PauseRequested(ctx, ru.state.RunID)
	if err != nil {
		logger.Warn("[Pipeline] Failed to read pause flag", "run_id", ru.state.RunID, "err", err)
		return false
	}
	return paused
}

func (ru *run) pause(ctx context.Context) (Result, error) {
	ru.status = store.StatusPaused
	ru.checkpoint(ctx)
	ru.emit(ctx, ru.event(store.EventWorkflowPaused))
	logger.Info("[Pipeline] Run paused", "run_id", ru.state.RunID, "chunk", ru.state.ChunkIndex)
	return ru.result(), ErrPaused
}

func (ru *run) currentStatus() store.RunStatus {
	if ru.status != "" {
		return ru.status
	}
	if ru.state.Stage != StageTerminal {
		return store.StatusRunning
	}
	if _, failed := ru.state.ValidationFailure(); failed {
		return store.StatusValidationFailed
	}
	return store.StatusCompleted
}

func (ru *run) result() Result {
	res := resultFromState(ru.state, ru.currentStatus())
	res.Steps = ru.steps
	if ru.failure != nil {
		res.Reason = ru.failure.Error()
		var re *RunError
		if errors.As(ru.failure, &re) {
			res.Stage = re.Stage
			res.ChunkIndex = re.ChunkIndex
		}
	}
	return res
}

func resultFromState(s *SessionState, status store.RunStatus) Result {
	res := Result{
		RunID:             s.RunID,
		BookID:            s.BookID,
		Status:            status,
		Stage:             s.Stage,
		ChunkIndex:        s.ChunkIndex,
		TotalChunks:       s.TotalChunks,
		Validation:        s.Validation,
		SkippedChunks:     s.SkippedChunks,
		CharactersTouched: s.CharactersTouched,
	}
	if gate, failed := s.ValidationFailure(); failed {
		res.Stage = gate.Gate
		res.Reason = gate.Reason
	}
	return res
}

func (ru *run) apply(ctx context.Context, effects []Effect) {
	for _, eff := range effects {
		switch eff {
		case EffectCheckpoint:
			ru.checkpoint(ctx)
		case EffectEmitValidation:
			if n := len(ru.state.Validation); n > 0 {
				g := ru.state.Validation[n-1]
				e := ru.event(store.EventValidationResult)
				e.Message = g.Reason
				e.Data = map[string]any{"gate": string(g.Gate), "passed": g.Passed, "score": g.Score}
				ru.emit(ctx, e)
			}
		case EffectClearProhibited:
			ru.state.ProhibitedContent = false
		case EffectFlagChunkSkipped:
			if ru.state.FlagSkipped() {
				e := ru.event(store.EventChunkSkipped)
				e.Message = ru.skipReason
				ru.emit(ctx, e)
			}
			ru.skipReason = ""
		case EffectEmitChunkReady:
			e := ru.event(store.EventChunkReady)
			e.ChunkIndex = ru.completed
			p := util.BuildRunProgress(ru.completed+1, ru.state.TotalChunks, ru.r.now().Sub(ru.started))
			e.Progress = &p
			names := make([]string, 0, len(ru.state.ResolvedCharacters))
			for _, rc := range ru.state.ResolvedCharacters {
				names = append(names, rc.Name)
			}
			e.Data = map[string]any{"characters": names}
			ru.emit(ctx, e)
		case EffectEmitComplete:
			e := ru.event(store.EventAnalysisComplete)
			e.Data = map[string]any{
				"characters_touched": ru.state.CharactersTouched,
				"skipped_chunks":     ru.state.SkippedChunks,
			}
			ru.emit(ctx, e)
		}
	}
}

func (ru *run) checkpoint(ctx context.Context) {
	status := ru.currentStatus()
	data, err := ru.state.Marshal()
	if err != nil {
		logger.Error("[Pipeline] Failed to encode session state", "run_id", ru.state.RunID, "err", err)
		return
	}
	switch {
	case status == store.StatusFailed && ru.boundary != nil:
		data = ru.boundary
	case status == store.StatusRunning || status == store.StatusPaused:
		ru.boundary = data
	}
	ru.saveCheckpoint(ctx, status, data)
}

func (ru *run) saveCheckpoint(ctx context.Context, status store.RunStatus, data []byte) {
	if ru.r.deps.Checkpoints == nil {
		return
	}
	err := ru.r.deps.Checkpoints.SaveCheckpoint(ctx, store.Checkpoint{
		RunID:     ru.state.RunID,
		BookID:    ru.state.BookID,
		Status:    status,
		State:     data,
		UpdatedAt: ru.r.now(),
	})
	if err != nil {
		logger.Error("[Pipeline] Failed to save checkpoint", "run_id", ru.state.RunID, "status", status, "err", err)
	}
}

func (ru *run) event(t store.EventType) store.Event {
	return store.Event{
		Type:        t,
		RunID:       ru.state.RunID,
		BookID:      ru.state.BookID,
		ChunkIndex:  ru.state.ChunkIndex,
		TotalChunks: ru.state.TotalChunks,
		Time:        ru.r.now(),
	}
}

// emit hands an event to the sink. Sink errors and panics are logged and
// never reach the run.
func (ru *run) emit(ctx context.Context, e store.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("[Pipeline] Progress sink panicked", "run_id", e.RunID, "event", e.Type, "panic", rec)
		}
	}()
	if err := ru.r.deps.Sink.Emit(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("[Pipeline] Failed to emit progress event", "run_id", e.RunID, "event", e.Type, "err", err)
	}
}
