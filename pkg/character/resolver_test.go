package character

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{0.3, 0.4, 0.5}, []float32{0.3, 0.4, 0.5}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 2}, []float32{-1, -2}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResolveExactMatchSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewResolver(NewResolverParams{Embedder: emb})

	known := []Character{
		{ID: "c2", BookID: "b", Profile: Profile{Name: "Omar"}},
		{ID: "c1", BookID: "b", Profile: Profile{Name: "Ahmed", Aliases: []string{"Abu Mohammed"}}},
	}
	res, err := r.Resolve(context.Background(), Profile{Name: "  abu mohammed"}, known)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Matched() || res.Character.ID != "c1" {
		t.Fatalf("expected match on c1, got %+v", res)
	}
	if res.Method != MethodExact || res.Similarity != 1 {
		t.Fatalf("expected exact match with similarity 1, got %s %v", res.Method, res.Similarity)
	}
	if len(emb.calls) != 0 {
		t.Fatalf("expected no embedding calls, got %d", len(emb.calls))
	}
}

func TestResolveNoKnownCharacters(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewResolver(NewResolverParams{Embedder: emb})

	res, err := r.Resolve(context.Background(), Profile{Name: "Ahmed"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Matched() || res.Method != MethodNone {
		t.Fatalf("expected no match, got %+v", res)
	}
	if len(emb.calls) != 0 {
		t.Fatalf("expected no embedding calls, got %d", len(emb.calls))
	}
}

func TestResolveThreshold(t *testing.T) {
	known := Character{ID: "c1", BookID: "b", Profile: Profile{Name: "Ahmed", Role: "merchant"}}
	candidate := Profile{Name: "The Trader", Role: "merchant"}

	tests := []struct {
		name      string
		candidate []float32
		matched   bool
	}{
		{"identical vectors match", unit(0), true},
		{"above threshold", unit(math.Acos(0.95)), true},
		{"below threshold", unit(math.Acos(0.85)), false},
		{"orthogonal", unit(math.Pi / 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &fakeEmbedder{vectors: map[string][]float32{
				RenderProfile(known.Profile): unit(0),
				RenderProfile(candidate):     tt.candidate,
			}}
			r := NewResolver(NewResolverParams{Embedder: emb})

			res, err := r.Resolve(context.Background(), candidate, []Character{known})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res.Matched() != tt.matched {
				t.Fatalf("expected matched=%v, got %+v", tt.matched, res)
			}
			if tt.matched && res.Method != MethodEmbedding {
				t.Fatalf("expected embedding method, got %s", res.Method)
			}
		})
	}
}

func TestResolveIdenticalRenderedTexts(t *testing.T) {
	p := Profile{Name: "Ahmed", Role: "merchant", Events: []string{"arrives"}}
	text := RenderProfile(p)
	emb := &fakeEmbedder{vectors: map[string][]float32{text: {0.12, -0.7, 0.33, 0.05}}}

	vec, err := emb.GenerateEmbedding(context.Background(), []byte(text))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := CosineSimilarity(vec, vec); got != 1 {
		t.Fatalf("expected similarity 1, got %v", got)
	}

	r := NewResolver(NewResolverParams{Embedder: emb})
	res, err := r.Resolve(context.Background(), p, []Character{{ID: "c1", BookID: "b", Profile: p}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Matched() || res.Character.ID != "c1" || res.Similarity != 1 {
		t.Fatalf("expected match on c1 with similarity 1, got %+v", res)
	}
}

func TestResolveTieGoesToSmallerID(t *testing.T) {
	a := Character{ID: "b-2", BookID: "b", Profile: Profile{Name: "Salem", Role: "guard"}}
	b := Character{ID: "a-1", BookID: "b", Profile: Profile{Name: "Saleh", Role: "guard"}}
	candidate := Profile{Name: "The Guard", Role: "guard"}

	emb := &fakeEmbedder{vectors: map[string][]float32{
		RenderProfile(a.Profile):  unit(0.1),
		RenderProfile(b.Profile):  unit(-0.1),
		RenderProfile(candidate): unit(0),
	}}
	r := NewResolver(NewResolverParams{Embedder: emb, Threshold: 0.5})

	for _, order := range [][]Character{{a, b}, {b, a}} {
		res, err := r.Resolve(context.Background(), candidate, order)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Matched() || res.Character.ID != "a-1" {
			t.Fatalf("expected tie to resolve to a-1, got %+v", res)
		}
	}
}

func TestResolveEmbeddingFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(NewResolverParams{Embedder: &fakeEmbedder{err: boom}})

	known := []Character{{ID: "c1", BookID: "b", Profile: Profile{Name: "Ahmed"}}}
	_, err := r.Resolve(context.Background(), Profile{Name: "Omar"}, known)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped embedding error, got %v", err)
	}
}

func TestResolveOrCreate(t *testing.T) {
	known := Character{ID: "c1", BookID: "b", Profile: Profile{Name: "Ahmed"}}
	candidate := Profile{Name: " Omar ", Role: "soldier"}
	emb := &fakeEmbedder{vectors: map[string][]float32{
		RenderProfile(known.Profile): unit(0),
		RenderProfile(candidate):     unit(math.Pi / 2),
	}}
	store := newFakeStore(known)
	r := NewResolver(NewResolverParams{Embedder: emb, Creator: store})

	ch, res, created, err := r.ResolveOrCreate(context.Background(), "b", candidate, []Character{known})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !created || res.Matched() {
		t.Fatalf("expected a new character, got created=%v res=%+v", created, res)
	}
	if ch.Profile.Name != "Omar" || ch.Profile.Role != "" {
		t.Fatalf("expected profile seeded with the name only, got %+v", ch.Profile)
	}
	if len(store.characters) != 2 {
		t.Fatalf("expected 2 stored characters, got %d", len(store.characters))
	}

	_, _, _, err = r.ResolveOrCreate(context.Background(), "b", Profile{}, nil)
	var invalid *InvalidProfileUpdateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidProfileUpdateError, got %v", err)
	}
}

// Ahmed appears in the first chunk and again as "Abu Mohammed" in the
// second, scoring 0.95 against the stored profile.
func TestResolveAliasBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	first := Profile{Name: "Ahmed", Role: "merchant"}
	second := Profile{Name: "Abu Mohammed", Role: "merchant"}

	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	r := NewResolver(NewResolverParams{Embedder: emb, Creator: store})

	ahmed, _, created, err := r.ResolveOrCreate(ctx, "b", first, nil)
	if err != nil || !created {
		t.Fatalf("expected Ahmed to be created, got %v %v", created, err)
	}
	merged, err := Merge(ahmed.Profile, first, first.Name)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ahmed.Profile = merged
	store.characters[ahmed.ID] = ahmed

	emb.vectors[RenderProfile(ahmed.Profile)] = unit(0)
	emb.vectors[RenderProfile(second)] = unit(math.Acos(0.95))

	got, res, created, err := r.ResolveOrCreate(ctx, "b", second, []Character{ahmed})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created || got.ID != ahmed.ID {
		t.Fatalf("expected resolution to Ahmed, got %+v created=%v", got, created)
	}
	if math.Abs(res.Similarity-0.95) > 1e-6 {
		t.Fatalf("expected similarity 0.95, got %v", res.Similarity)
	}

	merged, err = Merge(got.Profile, second, second.Name)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if merged.Name != "Ahmed" || len(merged.Aliases) != 1 || merged.Aliases[0] != "Abu Mohammed" {
		t.Fatalf("expected Ahmed with alias Abu Mohammed, got %+v", merged)
	}
	if len(store.characters) != 1 {
		t.Fatalf("expected exactly one character, got %d", len(store.characters))
	}
}
