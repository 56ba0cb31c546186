package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/chunker"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
	"github.com/google/go-cmp/cmp"
)

func TestCharacters(t *testing.T) {
	ctx := context.Background()
	s := New()

	ahmed, err := s.Create(ctx, "b1", character.Profile{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := s.Create(ctx, "b2", character.Profile{Name: "Ahmed"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := s.Create(ctx, "b1", character.Profile{}); err == nil {
		t.Fatalf("expected error for empty name")
	}

	updated := character.Profile{Name: "Renamed", Aliases: []string{"Abu Mohammed"}, Role: "merchant"}
	ok, err := s.UpdateProfile(ctx, ahmed.ID, updated)
	if err != nil || !ok {
		t.Fatalf("expected update, got %v %v", ok, err)
	}
	ok, err = s.UpdateProfile(ctx, "missing", updated)
	if err != nil || ok {
		t.Fatalf("expected no update for missing id, got %v %v", ok, err)
	}

	found, err := s.FindByName(ctx, "b1", "  abu MOHAMMED ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if found == nil || found.ID != ahmed.ID {
		t.Fatalf("expected alias lookup to find %s, got %+v", ahmed.ID, found)
	}
	if found.Profile.Name != "Ahmed" || found.Profile.Role != "merchant" {
		t.Fatalf("expected name to stay Ahmed with role merchant, got %+v", found.Profile)
	}

	missing, err := s.FindByName(ctx, "b1", "Fatima")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, got %+v %v", missing, err)
	}

	list, err := s.List(ctx, "b1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one character in b1, got %d %v", len(list), err)
	}
	list[0].Profile.Aliases[0] = "mutated"
	again, _ := s.FindByName(ctx, "b1", "Abu Mohammed")
	if again == nil {
		t.Fatalf("expected stored profile to be isolated from callers")
	}
}

func TestUpsertIsCanonical(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, created, err := s.Upsert(ctx, "y", "x", "friend", "b")
	if err != nil || !created {
		t.Fatalf("expected created row, got %v %v", created, err)
	}
	second, created, err := s.Upsert(ctx, "x", "y", "friend", "b")
	if err != nil || created {
		t.Fatalf("expected existing row, got %v %v", created, err)
	}
	if first.ID != second.ID || second.CharacterA != "x" || second.CharacterB != "y" {
		t.Fatalf("expected same canonical row, got %+v and %+v", first, second)
	}

	if _, _, err := s.Upsert(ctx, "x", "y", "rival", "b"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, _, err := s.Upsert(ctx, "x", "x", "self", "b"); err == nil {
		t.Fatalf("expected error for self edge")
	}

	rels, err := s.ListRelationships(ctx, "b")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rels) != 1 || rels[0].Kind != "rival" {
		t.Fatalf("expected one rival edge, got %+v", rels)
	}
}

func TestChunksAndMentions(t *testing.T) {
	ctx := context.Background()
	s := New()

	chunks := []chunker.Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}
	if err := s.SaveChunks(ctx, "b", chunks); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	c, err := s.Get(ctx, "b", 1)
	if err != nil || c == nil || c.Text != "b" {
		t.Fatalf("expected chunk b, got %+v %v", c, err)
	}
	if c, _ := s.Get(ctx, "b", 2); c != nil {
		t.Fatalf("expected nil for missing chunk, got %+v", c)
	}

	_ = s.RecordMentions(ctx, "b", 0, []string{"c1", "c1", "c2"})
	_ = s.RecordMentions(ctx, "b", 0, []string{"c1"})
	want := []store.Mention{
		{BookID: "b", ChunkIndex: 0, CharacterID: "c1"},
		{BookID: "b", ChunkIndex: 0, CharacterID: "c2"},
	}
	if diff := cmp.Diff(want, s.Mentions("b")); diff != "" {
		t.Fatalf("unexpected mentions (-want +got):\n%s", diff)
	}
}

func TestCheckpointsAndPause(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.LoadCheckpoint(ctx, "r1"); !errors.Is(err, store.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}

	state := json.RawMessage(`{"chunk_index":3}`)
	_ = s.SaveCheckpoint(ctx, store.Checkpoint{RunID: "r1", BookID: "b", Status: store.StatusRunning, State: state, UpdatedAt: now.Add(-time.Hour)})
	_ = s.SaveCheckpoint(ctx, store.Checkpoint{RunID: "r2", BookID: "b", Status: store.StatusPaused, UpdatedAt: now.Add(-time.Hour)})
	_ = s.SaveCheckpoint(ctx, store.Checkpoint{RunID: "r3", BookID: "c", Status: store.StatusRunning, UpdatedAt: now})

	cp, err := s.LoadCheckpoint(ctx, "r1")
	if err != nil || string(cp.State) != string(state) {
		t.Fatalf("expected stored state, got %+v %v", cp, err)
	}

	stale, err := s.ListStale(ctx, now.Add(-30*time.Minute))
	if err != nil || len(stale) != 1 || stale[0].RunID != "r1" {
		t.Fatalf("expected r1 to be stale, got %+v %v", stale, err)
	}

	_ = s.DeleteCheckpoint(ctx, "r1")
	if _, err := s.LoadCheckpoint(ctx, "r1"); !errors.Is(err, store.ErrCheckpointNotFound) {
		t.Fatalf("expected deleted checkpoint, got %v", err)
	}

	if p, _ := s.PauseRequested(ctx, "r2"); p {
		t.Fatalf("expected no pause request")
	}
	_ = s.RequestPause(ctx, "r2")
	if p, _ := s.PauseRequested(ctx, "r2"); !p {
		t.Fatalf("expected pause request")
	}
	_ = s.ClearPause(ctx, "r2")
	if p, _ := s.PauseRequested(ctx, "r2"); p {
		t.Fatalf("expected cleared pause request")
	}
}

func TestEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := New()

	vec := []float32{1, 2}
	_ = s.SaveEmbedding(ctx, "b", character.StoredEmbedding{CharacterID: "c2", Text: "t2", Vector: vec})
	_ = s.SaveEmbedding(ctx, "b", character.StoredEmbedding{CharacterID: "c1", Text: "t1", Vector: []float32{3}})
	_ = s.SaveEmbedding(ctx, "other", character.StoredEmbedding{CharacterID: "c9", Text: "t9", Vector: []float32{4}})
	vec[0] = 99

	got, err := s.LoadEmbeddings(ctx, "b")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 2 || got[0].CharacterID != "c1" || got[1].Vector[0] != 1 {
		t.Fatalf("expected two isolated embeddings ordered by id, got %+v", got)
	}
}
