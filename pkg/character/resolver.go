package character

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

// DefaultThreshold is the minimum cosine similarity for an embedding match.
const DefaultThreshold = 0.9

// Method tells how a resolution was reached.
type Method string

const (
	MethodNone      Method = "none"
	MethodExact     Method = "exact"
	MethodEmbedding Method = "embedding"
)

// Resolution is the outcome of resolving one candidate. Character is nil
// when nothing matched.
type Resolution struct {
	Character  *Character
	Similarity float64
	Method     Method
}

func (r Resolution) Matched() bool {
	return r.Character != nil
}

// CharacterCreator persists a new character.
type CharacterCreator interface {
	Create(ctx context.Context, bookID string, p Profile) (Character, error)
}

// Resolver decides whether a candidate refers to a known character.
type Resolver struct {
	embedder  ai.Embedder
	cache     *EmbeddingCache
	creator   CharacterCreator
	threshold float64
}

type NewResolverParams struct {
	Embedder  ai.Embedder
	Cache     *EmbeddingCache
	Creator   CharacterCreator
	Threshold float64
}

func NewResolver(params NewResolverParams) *Resolver {
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	cache := params.Cache
	if cache == nil {
		cache = NewEmbeddingCache(params.Embedder, nil)
	}
	return &Resolver{
		embedder:  params.Embedder,
		cache:     cache,
		creator:   params.Creator,
		threshold: threshold,
	}
}

func (r *Resolver) Threshold() float64 {
	return r.threshold
}

func (r *Resolver) Cache() *EmbeddingCache {
	return r.cache
}

// Resolve matches candidate against known. An exact normalized key match on
// a name or alias wins outright. Otherwise the rendered candidate is
// compared to every known profile by embedding; the best score at or above
// the threshold wins and exact ties go to the smaller id.
func (r *Resolver) Resolve(ctx context.Context, candidate Profile, known []Character) (Resolution, error) {
	if len(known) == 0 {
		return Resolution{Method: MethodNone}, nil
	}

	sorted := slices.Clone(known)
	slices.SortFunc(sorted, func(a, b Character) int {
		return cmp.Compare(a.ID, b.ID)
	})

	key := NormalizeKey(candidate.Name)
	for i := range sorted {
		if MatchesKey(sorted[i].Profile, key) {
			ch := sorted[i]
			return Resolution{Character: &ch, Similarity: 1, Method: MethodExact}, nil
		}
	}

	vec, err := r.embedder.GenerateEmbedding(ctx, []byte(RenderProfile(candidate)))
	if err != nil {
		return Resolution{}, fmt.Errorf("embed candidate %q: %w", candidate.Name, err)
	}

	best := -1
	bestScore := -2.0
	for i := range sorted {
		other, err := r.cache.Get(ctx, sorted[i])
		if err != nil {
			return Resolution{}, err
		}
		score := CosineSimilarity(vec, other)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore < r.threshold {
		logger.Debug("[Resolver] No match above threshold", "name", candidate.Name, "best", bestScore)
		return Resolution{Similarity: max(bestScore, 0), Method: MethodNone}, nil
	}
	ch := sorted[best]
	logger.Debug("[Resolver] Matched by embedding", "name", candidate.Name, "character", ch.Profile.Name, "similarity", bestScore)
	return Resolution{Character: &ch, Similarity: bestScore, Method: MethodEmbedding}, nil
}

// ResolveOrCreate resolves candidate and creates a character seeded with
// only its name when nothing matches.
func (r *Resolver) ResolveOrCreate(
	ctx context.Context,
	bookID string,
	candidate Profile,
	known []Character,
) (Character, Resolution, bool, error) {
	if err := ValidateUpdate(candidate); err != nil {
		return Character{}, Resolution{}, false, err
	}

	res, err := r.Resolve(ctx, candidate, known)
	if err != nil {
		return Character{}, res, false, err
	}
	if res.Matched() {
		return *res.Character, res, false, nil
	}

	ch, err := r.creator.Create(ctx, bookID, Profile{Name: strings.TrimSpace(candidate.Name)})
	if err != nil {
		return Character{}, res, false, fmt.Errorf("create character %q: %w", candidate.Name, err)
	}
	logger.Debug("[Resolver] Created character", "book_id", bookID, "id", ch.ID, "name", ch.Profile.Name)
	return ch, res, true, nil
}
