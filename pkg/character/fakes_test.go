package character

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	calls   []string
	err     error
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	text := string(input)
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

type fakeStore struct {
	characters map[string]Character
	edges      map[[2]string]Relationship
	nextID     int
	findErr    error
}

func newFakeStore(chars ...Character) *fakeStore {
	s := &fakeStore{
		characters: make(map[string]Character),
		edges:      make(map[[2]string]Relationship),
	}
	for _, c := range chars {
		s.characters[c.ID] = c
	}
	return s
}

func (s *fakeStore) FindByName(_ context.Context, bookID, name string) (*Character, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	key := NormalizeKey(name)
	ids := make([]string, 0, len(s.characters))
	for id := range s.characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := s.characters[id]
		if c.BookID == bookID && MatchesKey(c.Profile, key) {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Create(_ context.Context, bookID string, p Profile) (Character, error) {
	if p.Name == "" {
		return Character{}, errors.New("empty name")
	}
	s.nextID++
	c := Character{ID: fmt.Sprintf("new-%d", s.nextID), BookID: bookID, Profile: p}
	s.characters[c.ID] = c
	return c, nil
}

func (s *fakeStore) Upsert(_ context.Context, a, b, kind, bookID string) (Relationship, bool, error) {
	a, b = CanonicalPair(a, b)
	key := [2]string{a, b}
	rel, ok := s.edges[key]
	if !ok {
		rel = Relationship{ID: fmt.Sprintf("rel-%d", len(s.edges)+1), BookID: bookID, CharacterA: a, CharacterB: b}
	}
	rel.Kind = kind
	s.edges[key] = rel
	return rel, !ok, nil
}
