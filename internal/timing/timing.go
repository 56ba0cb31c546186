package timing

import (
	"sort"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

// StageStats aggregates the durations recorded for one pipeline stage.
type StageStats struct {
	Stage string
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average duration of the stage, or zero when nothing was recorded.
func (s StageStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Tracker records how long each stage of a run takes.
type Tracker struct {
	mu     sync.Mutex
	now    func() time.Time
	start  time.Time
	stages map[string]*StageStats
}

func NewTracker() *Tracker {
	return newTrackerWithClock(time.Now)
}

func newTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		now:    now,
		start:  now(),
		stages: make(map[string]*StageStats),
	}
}

// Start begins timing a stage and returns the function that stops it.
func (t *Tracker) Start(stage string) func() {
	if t == nil {
		return func() {}
	}
	begin := t.now()
	return func() {
		t.Add(stage, t.now().Sub(begin))
	}
}

func (t *Tracker) Add(stage string, d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stages[stage]
	if !ok {
		s = &StageStats{Stage: stage}
		t.stages[stage] = s
	}
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
}

// Elapsed is the wall time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return t.now().Sub(t.start)
}

// Snapshot returns the stats sorted by total duration, longest first.
func (t *Tracker) Snapshot() []StageStats {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StageStats, 0, len(t.stages))
	for _, s := range t.stages {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total == out[j].Total {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Total > out[j].Total
	})
	return out
}

// Log writes one debug line per stage.
func (t *Tracker) Log(runID string) {
	for _, s := range t.Snapshot() {
		logger.Debug("[Timing] stage summary",
			"run_id", runID,
			"stage", s.Stage,
			"count", s.Count,
			"total_ms", s.Total.Milliseconds(),
			"mean_ms", s.Mean().Milliseconds(),
			"max_ms", s.Max.Milliseconds(),
		)
	}
	logger.Info("[Timing] run finished", "run_id", runID, "elapsed_ms", t.Elapsed().Milliseconds())
}
