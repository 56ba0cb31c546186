package pipeline

import (
	"context"
	"strings"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/character"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
)

// NameExtractor returns the character names present in a text window.
type NameExtractor interface {
	ExtractNames(ctx context.Context, window string) ([]string, error)
}

// Summarizer folds a chunk into the rolling summary.
type Summarizer interface {
	Summarize(ctx context.Context, vars ai.SummaryVars) (string, error)
}

// ProfileDiffer proposes profile updates for the detected characters.
type ProfileDiffer interface {
	ProfileDiff(ctx context.Context, vars ai.ProfileDiffVars) ([]character.ProfileUpdate, error)
}

type QualityAssessor interface {
	AssessQuality(ctx context.Context, samples []string) (ai.QualityResponse, error)
}

type Classifier interface {
	Classify(ctx context.Context, samples []string) (ai.ClassificationResponse, error)
}

// LLM implements every model-backed port on top of a TextGenerator.
type LLM struct {
	gen  ai.TextGenerator
	opts []ai.GenerateOption
}

func NewLLM(gen ai.TextGenerator, opts ...ai.GenerateOption) *LLM {
	return &LLM{gen: gen, opts: opts}
}

func (l *LLM) ExtractNames(ctx context.Context, window string) ([]string, error) {
	if strings.TrimSpace(window) == "" {
		return nil, nil
	}
	res, err := ai.Query[ai.NamesResponse](ctx, l.gen, ai.PromptNames, ai.NamesVars{Text: window}, l.opts...)
	if err != nil {
		return nil, err
	}
	return cleanNames(res.Names()), nil
}

func (l *LLM) Summarize(ctx context.Context, vars ai.SummaryVars) (string, error) {
	res, err := ai.Query[ai.SummaryResponse](ctx, l.gen, ai.PromptSummary, vars, l.opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Summary), nil
}

func (l *LLM) ProfileDiff(ctx context.Context, vars ai.ProfileDiffVars) ([]character.ProfileUpdate, error) {
	res, err := ai.Query[ai.ProfileDiffResponse](ctx, l.gen, ai.PromptProfileDiff, vars, l.opts...)
	if err != nil {
		return nil, err
	}
	out := make([]character.ProfileUpdate, 0, len(res.Profiles))
	for _, p := range res.Profiles {
		out = append(out, character.ProfileUpdate{
			Name:                    strings.TrimSpace(p.Name),
			Age:                     p.Age,
			Role:                    p.Role,
			PhysicalCharacteristics: p.PhysicalCharacteristics,
			Personality:             p.Personality,
			Events:                  p.Events,
			Relations:               p.Relations,
			Aliases:                 p.Aliases,
		})
	}
	return out, nil
}

func (l *LLM) AssessQuality(ctx context.Context, samples []string) (ai.QualityResponse, error) {
	return ai.Query[ai.QualityResponse](ctx, l.gen, ai.PromptQuality, ai.SampleVars{Samples: samples}, l.opts...)
}

func (l *LLM) Classify(ctx context.Context, samples []string) (ai.ClassificationResponse, error) {
	return ai.Query[ai.ClassificationResponse](ctx, l.gen, ai.PromptClassify, ai.SampleVars{Samples: samples}, l.opts...)
}

// cleanNames trims names and drops empties and repeats, keeping order.
func cleanNames(names []string) []string {
	trimmed := make([]string, 0, len(names))
	for _, n := range names {
		trimmed = append(trimmed, strings.TrimSpace(n))
	}
	return store.DedupeStrings(trimmed)
}

var (
	_ NameExtractor   = (*LLM)(nil)
	_ Summarizer      = (*LLM)(nil)
	_ ProfileDiffer   = (*LLM)(nil)
	_ QualityAssessor = (*LLM)(nil)
	_ Classifier      = (*LLM)(nil)
)
