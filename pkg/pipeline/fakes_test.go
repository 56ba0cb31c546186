package pipeline

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/memory"
)

const (
	testBook = "book-1"

	// Three chunks with a size of 40 runes; the third names nobody.
	aliasBook = "Ahmed walks into the old market.\n\nAbu Mohammed greets the merchants.\n\nThe rain falls over the quiet city."
	// Three chunks that each name a different character.
	castBook = "Ahmed walks into the old market.\n\nFatima waits by the river bank.\n\nOmar sells bread near the gate."
	// Fatima first, then Ahmed and Fatima together twice.
	coupleBook = "Fatima waits by the river bank.\n\nAhmed and Fatima share a meal.\n\nAhmed and Fatima walk home."
)

var castNames = []string{"Ahmed", "Abu Mohammed", "Fatima", "Omar"}

func defaultNames(window string) []string {
	var out []string
	for _, n := range castNames {
		if strings.Contains(window, n) {
			out = append(out, n)
		}
	}
	return out
}

func defaultDiff(vars ai.ProfileDiffVars) []character.ProfileUpdate {
	out := make([]character.ProfileUpdate, 0, len(vars.Names))
	for _, n := range vars.Names {
		out = append(out, character.ProfileUpdate{Name: n, Role: "merchant", Events: []string{"appears"}})
	}
	return out
}

// fakeLLM scripts every model port. Nil hooks fall back to defaults that
// recognise castNames.
type fakeLLM struct {
	mu sync.Mutex

	names   func(ctx context.Context, window string) ([]string, error)
	summary func(vars ai.SummaryVars) (string, error)
	diff    func(vars ai.ProfileDiffVars) ([]character.ProfileUpdate, error)

	quality    ai.QualityResponse
	qualityErr error
	class      ai.ClassificationResponse
	classErr   error

	nameCalls     int
	summaryChunks []string
	diffVars      []ai.ProfileDiffVars
	qualityCalls  int
	classCalls    int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		quality: ai.QualityResponse{Score: 0.9, Level: "good"},
		class:   ai.ClassificationResponse{IsLiterary: true, Classification: "literary", Confidence: 0.9},
	}
}

func (f *fakeLLM) ExtractNames(ctx context.Context, window string) ([]string, error) {
	f.mu.Lock()
	f.nameCalls++
	hook := f.names
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, window)
	}
	return defaultNames(window), nil
}

func (f *fakeLLM) Summarize(_ context.Context, vars ai.SummaryVars) (string, error) {
	f.mu.Lock()
	f.summaryChunks = append(f.summaryChunks, vars.Chunk)
	hook := f.summary
	f.mu.Unlock()

	if hook != nil {
		return hook(vars)
	}
	return "summary: " + vars.Chunk, nil
}

func (f *fakeLLM) ProfileDiff(_ context.Context, vars ai.ProfileDiffVars) ([]character.ProfileUpdate, error) {
	f.mu.Lock()
	f.diffVars = append(f.diffVars, vars)
	hook := f.diff
	f.mu.Unlock()

	if hook != nil {
		return hook(vars)
	}
	return defaultDiff(vars), nil
}

func (f *fakeLLM) AssessQuality(context.Context, []string) (ai.QualityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qualityCalls++
	return f.quality, f.qualityErr
}

func (f *fakeLLM) Classify(context.Context, []string) (ai.ClassificationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classCalls++
	return f.class, f.classErr
}

func (f *fakeLLM) summarized() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.summaryChunks)
}

func (f *fakeLLM) diffs() []ai.ProfileDiffVars {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.diffVars)
}

const embeddingDims = 64

// fakeEmbedder gives profiles of Ahmed and Abu Mohammed vectors with a
// cosine of 0.95. Every other distinct text gets its own axis.
type fakeEmbedder struct {
	mu     sync.Mutex
	axes   map[string]int
	calls  int
	prefix map[string][]float32
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		axes: make(map[string]int),
		prefix: map[string][]float32{
			"Ahmed |":        plane(0),
			"Abu Mohammed |": plane(math.Acos(0.95)),
		},
	}
}

func plane(angle float64) []float32 {
	v := make([]float32, embeddingDims)
	v[0] = float32(math.Cos(angle))
	v[1] = float32(math.Sin(angle))
	return v
}

func (e *fakeEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	text := string(input)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	for p, v := range e.prefix {
		if strings.HasPrefix(text, p) {
			return slices.Clone(v), nil
		}
	}
	axis, ok := e.axes[text]
	if !ok {
		axis = 2 + len(e.axes)%(embeddingDims-2)
		e.axes[text] = axis
	}
	v := make([]float32, embeddingDims)
	v[axis] = 1
	return v, nil
}

type harness struct {
	store    *memory.Store
	llm      *fakeLLM
	embedder *fakeEmbedder
	events   *store.Recorder
	runner   *Runner
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SkipValidation = true
	cfg.Seed = 1
	cfg.Chunk = chunker.Options{Size: 40, Overlap: 0}
	return cfg
}

// gatedConfig runs every validation gate against Latin text.
func gatedConfig() Config {
	cfg := testConfig()
	cfg.SkipValidation = false
	cfg.LanguageScript = "latin"
	return cfg
}

func newHarness(t *testing.T, cfg Config, mutate ...func(h *harness, deps *Deps)) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		llm:      newFakeLLM(),
		embedder: newFakeEmbedder(),
		events:   &store.Recorder{},
	}
	deps := Deps{
		Store:       h.store,
		Checkpoints: h.store,
		Pauses:      h.store,
		Embeddings:  h.store,
		Sink:        h.events,
		Embedder:    h.embedder,
		Names:       h.llm,
		Summarizer:  h.llm,
		Profiles:    h.llm,
		Quality:     h.llm,
		Classifier:  h.llm,
	}
	for _, m := range mutate {
		m(h, &deps)
	}
	r, err := NewRunner(deps, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.runner = r
	return h
}

func (h *harness) characters(t *testing.T, bookID string) []character.Character {
	t.Helper()
	chars, err := h.store.List(context.Background(), bookID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return chars
}

func (h *harness) checkpoint(t *testing.T, runID string) (*store.Checkpoint, *SessionState) {
	t.Helper()
	cp, err := h.store.LoadCheckpoint(context.Background(), runID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state, err := UnmarshalSessionState(cp.State)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cp, state
}

func (h *harness) count(typ store.EventType) int {
	n := 0
	for _, got := range h.events.Types() {
		if got == typ {
			n++
		}
	}
	return n
}
