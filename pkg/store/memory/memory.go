// Package memory implements every store port in process memory. It backs
// the CLI when no database is configured and the pipeline tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

type pairKey struct {
	bookID string
	a, b   string
}

type embeddingKey struct {
	bookID      string
	characterID string
}

type Store struct {
	mu sync.RWMutex

	characters    map[string]character.Character
	relationships map[pairKey]character.Relationship
	chunks        map[string][]chunker.Chunk
	mentions      map[string][]store.Mention
	embeddings    map[embeddingKey]character.StoredEmbedding
	checkpoints   map[string]store.Checkpoint
	pauses        map[string]bool

	newID func() (string, error)
	now   func() time.Time
}

func New() *Store {
	return &Store{
		characters:    make(map[string]character.Character),
		relationships: make(map[pairKey]character.Relationship),
		chunks:        make(map[string][]chunker.Chunk),
		mentions:      make(map[string][]store.Mention),
		embeddings:    make(map[embeddingKey]character.StoredEmbedding),
		checkpoints:   make(map[string]store.Checkpoint),
		pauses:        make(map[string]bool),
		newID:         util.NewID,
		now:           time.Now,
	}
}

func (s *Store) FindByName(_ context.Context, bookID, name string) (*character.Character, error) {
	key := character.NormalizeKey(name)
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *character.Character
	for _, c := range s.characters {
		if c.BookID != bookID || !character.MatchesKey(c.Profile, key) {
			continue
		}
		if found == nil || c.ID < found.ID {
			cp := c
			found = &cp
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	out.Profile = found.Profile.Clone()
	return &out, nil
}

func (s *Store) Create(_ context.Context, bookID string, profile character.Profile) (character.Character, error) {
	if err := character.ValidateUpdate(profile); err != nil {
		return character.Character{}, err
	}
	id, err := s.newID()
	if err != nil {
		return character.Character{}, fmt.Errorf("generate character id: %w", err)
	}
	c := character.Character{ID: id, BookID: bookID, Profile: profile.Clone()}

	s.mu.Lock()
	s.characters[id] = c
	s.mu.Unlock()

	c.Profile = c.Profile.Clone()
	return c, nil
}

func (s *Store) UpdateProfile(_ context.Context, characterID string, profile character.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return false, nil
	}
	name := c.Profile.Name
	c.Profile = profile.Clone()
	c.Profile.Name = name
	s.characters[characterID] = c
	return true, nil
}

// List returns the characters of a book ordered by id.
func (s *Store) List(_ context.Context, bookID string) ([]character.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]character.Character, 0)
	for _, c := range s.characters {
		if c.BookID != bookID {
			continue
		}
		c.Profile = c.Profile.Clone()
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b character.Character) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) Upsert(_ context.Context, characterA, characterB, kind, bookID string) (character.Relationship, bool, error) {
	if characterA == "" || characterB == "" || characterA == characterB {
		return character.Relationship{}, false, fmt.Errorf("invalid relationship pair %q-%q", characterA, characterB)
	}
	a, b := character.CanonicalPair(characterA, characterB)
	key := pairKey{bookID: bookID, a: a, b: b}

	s.mu.Lock()
	defer s.mu.Unlock()

	rel, exists := s.relationships[key]
	if !exists {
		id, err := s.newID()
		if err != nil {
			return character.Relationship{}, false, fmt.Errorf("generate relationship id: %w", err)
		}
		rel = character.Relationship{ID: id, BookID: bookID, CharacterA: a, CharacterB: b}
	}
	rel.Kind = kind
	s.relationships[key] = rel
	return rel, !exists, nil
}

func (s *Store) ListRelationships(_ context.Context, bookID string) ([]character.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]character.Relationship, 0)
	for k, r := range s.relationships {
		if k.bookID == bookID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(x, y character.Relationship) int {
		return cmp.Or(cmp.Compare(x.CharacterA, y.CharacterA), cmp.Compare(x.CharacterB, y.CharacterB))
	})
	return out, nil
}

func (s *Store) SaveChunks(_ context.Context, bookID string, chunks []chunker.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[bookID] = slices.Clone(chunks)
	return nil
}

func (s *Store) Get(_ context.Context, bookID string, index int) (*chunker.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chunks[bookID] {
		if c.Index == index {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) RecordMentions(_ context.Context, bookID string, chunkIndex int, characterIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range store.DedupeStrings(characterIDs) {
		m := store.Mention{BookID: bookID, ChunkIndex: chunkIndex, CharacterID: id}
		if !slices.Contains(s.mentions[bookID], m) {
			s.mentions[bookID] = append(s.mentions[bookID], m)
		}
	}
	return nil
}

func (s *Store) Mentions(bookID string) []store.Mention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.mentions[bookID])
}

func (s *Store) SaveEmbedding(_ context.Context, bookID string, e character.StoredEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Vector = slices.Clone(e.Vector)
	s.embeddings[embeddingKey{bookID, e.CharacterID}] = e
	return nil
}

func (s *Store) LoadEmbeddings(_ context.Context, bookID string) ([]character.StoredEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []character.StoredEmbedding
	for k, e := range s.embeddings {
		if k.bookID != bookID {
			continue
		}
		e.Vector = slices.Clone(e.Vector)
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b character.StoredEmbedding) int {
		return cmp.Compare(a.CharacterID, b.CharacterID)
	})
	return out, nil
}

func (s *Store) SaveCheckpoint(_ context.Context, cp store.Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint without run id")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	cp.State = slices.Clone(cp.State)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.RunID] = cp
	return nil
}

func (s *Store) LoadCheckpoint(_ context.Context, runID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[runID]
	if !ok {
		return nil, store.ErrCheckpointNotFound
	}
	cp.State = slices.Clone(cp.State)
	return &cp, nil
}

func (s *Store) DeleteCheckpoint(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, runID)
	return nil
}

func (s *Store) ListStale(_ context.Context, olderThan time.Time) ([]store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Checkpoint
	for _, cp := range s.checkpoints {
		if cp.Status == store.StatusRunning && cp.UpdatedAt.Before(olderThan) {
			out = append(out, cp)
		}
	}
	slices.SortFunc(out, func(a, b store.Checkpoint) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	return out, nil
}

func (s *Store) PauseRequested(_ context.Context, runID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pauses[runID], nil
}

func (s *Store) RequestPause(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses[runID] = true
	return nil
}

func (s *Store) ClearPause(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pauses, runID)
	return nil
}

var (
	_ store.BookStore       = (*Store)(nil)
	_ store.EmbeddingStore  = (*Store)(nil)
	_ store.CheckpointStore = (*Store)(nil)
	_ store.PauseController = (*Store)(nil)
)
