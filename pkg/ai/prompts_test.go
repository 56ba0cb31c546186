package ai

import (
	"strings"
	"testing"
)

func TestPromptsRegistered(t *testing.T) {
	for _, id := range []PromptID{PromptNames, PromptSummary, PromptProfileDiff, PromptQuality, PromptClassify} {
		p, ok := LookupPrompt(id)
		if !ok {
			t.Fatalf("prompt %s not registered", id)
		}
		if p.Name == "" || p.System == "" {
			t.Fatalf("prompt %s incomplete: %+v", id, p)
		}
	}
}

func TestRenderSummaryPrompt(t *testing.T) {
	p, _ := LookupPrompt(PromptSummary)

	out, err := p.Render(SummaryVars{Chunk: "chunk text", Names: []string{"Ahmed", "Fatima"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "(none yet)") {
		t.Fatalf("expected placeholder for empty summary, got %q", out)
	}
	if !strings.Contains(out, "Ahmed, Fatima") {
		t.Fatalf("expected joined names, got %q", out)
	}
	if !strings.Contains(out, "chunk text") {
		t.Fatalf("expected chunk text, got %q", out)
	}
}

func TestRenderSamplePrompt(t *testing.T) {
	p, _ := LookupPrompt(PromptQuality)
	out, err := p.Render(SampleVars{Samples: []string{"first sample", "second sample"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "[0] first sample") || !strings.Contains(out, "[1] second sample") {
		t.Fatalf("expected numbered samples, got %q", out)
	}
}
