package pipeline

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
)

// GateResult is the outcome of one validation gate.
type GateResult struct {
	Gate   Stage   `json:"gate"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// ResolvedCharacter records how a name of the current chunk was resolved.
type ResolvedCharacter struct {
	Name        string           `json:"name"`
	CharacterID string           `json:"character_id"`
	Created     bool             `json:"created"`
	Method      character.Method `json:"method"`
	Similarity  float64          `json:"similarity"`
}

// SessionState is everything a run threads from one chunk to the next. It
// is checkpointed at every chunk boundary.
type SessionState struct {
	RunID              string              `json:"run_id"`
	BookID             string              `json:"book_id"`
	Stage              Stage               `json:"stage"`
	ChunkIndex         int                 `json:"chunk_index"`
	TotalChunks        int                 `json:"total_chunks"`
	PreviousChunkText  string              `json:"previous_chunk_text"`
	CurrentChunkText   string              `json:"current_chunk_text"`
	RollingSummary     string              `json:"rolling_summary"`
	LastDetectedNames  []string            `json:"last_detected_names"`
	ResolvedCharacters []ResolvedCharacter `json:"resolved_characters"`
	NoMoreChunks       bool                `json:"no_more_chunks"`
	ProhibitedContent  bool                `json:"prohibited_content"`
	ChunkBlocked       bool                `json:"chunk_blocked"`
	SkippedChunks      []int               `json:"skipped_chunks"`
	Validation         []GateResult        `json:"validation"`
	CharactersTouched  int                 `json:"characters_touched"`
}

func NewSessionState(runID, bookID string) *SessionState {
	return &SessionState{RunID: runID, BookID: bookID, Stage: StageLanguageCheck}
}

func (s *SessionState) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalSessionState(data []byte) (*SessionState, error) {
	var s SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if s.RunID == "" || s.BookID == "" {
		return nil, fmt.Errorf("decode session state: missing run or book id")
	}
	return &s, nil
}

// DetectionWindow is the text handed to name detection: the last third of
// the previous chunk followed by the whole current chunk.
func (s *SessionState) DetectionWindow() string {
	tail := lastThird(s.PreviousChunkText)
	if tail == "" {
		return s.CurrentChunkText
	}
	return tail + "\n\n" + s.CurrentChunkText
}

// SummaryContext is the part of the rolling summary handed to the
// summarizer together with the current chunk.
func (s *SessionState) SummaryContext() string {
	return lastThird(s.RollingSummary)
}

// FlagSkipped marks the current chunk as skipped once.
func (s *SessionState) FlagSkipped() bool {
	if slices.Contains(s.SkippedChunks, s.ChunkIndex) {
		return false
	}
	s.SkippedChunks = append(s.SkippedChunks, s.ChunkIndex)
	return true
}

// ValidationFailure returns the first failed gate, if any.
func (s *SessionState) ValidationFailure() (GateResult, bool) {
	for _, g := range s.Validation {
		if !g.Passed {
			return g, true
		}
	}
	return GateResult{}, false
}

func lastThird(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	third := len(r) / 3
	return string(r[2*third:])
}
