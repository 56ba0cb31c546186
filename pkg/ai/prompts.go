package ai

import (
	"fmt"
	"strings"
	"text/template"
)

// PromptID names a registered prompt template.
type PromptID string

const (
	PromptNames       PromptID = "names"
	PromptSummary     PromptID = "summary"
	PromptProfileDiff PromptID = "profile_diff"
	PromptQuality     PromptID = "quality"
	PromptClassify    PromptID = "classify"
)

// Prompt is a registered template together with its structured output name.
type Prompt struct {
	ID          PromptID
	Name        string
	Description string
	System      string
	Temperature float64
	tmpl        *template.Template
}

// NamesVars feeds PromptNames.
type NamesVars struct {
	Text string
}

// SummaryVars feeds PromptSummary.
type SummaryVars struct {
	PreviousSummary string
	Chunk           string
	Names           []string
}

// ProfileDiffVars feeds PromptProfileDiff. Existing holds the current profiles
// rendered as JSON.
type ProfileDiffVars struct {
	Summary  string
	Names    []string
	Existing string
}

// SampleVars feeds PromptQuality and PromptClassify.
type SampleVars struct {
	Samples []string
}

const systemPrompt = `You are a careful literary analyst working on Arabic novels and short stories.
You only report what the text states or clearly implies. You never invent characters, names or events.
Always answer with a single JSON object that matches the requested schema.`

const namesPrompt = `
# Task Context
You extract the names of the characters that appear in a passage of a literary text.

# Background Data
{{.Text}}

# Detailed Task Description & Rules
- List every character that acts, speaks or is addressed in the passage.
- Write each name exactly as it appears in the text, without translation.
- Titles such as "Sheikh" or "Dr." may be kept when the text uses them as part of the name.
- Do not list places, organisations, gods or abstract concepts.
- Do not list the same character twice under the same name.
- Return an empty list when the passage contains no characters.

# Output Formatting
Return a JSON object with this structure:
{
  "characters": [{"name": "<name>"}]
}
`

const summaryPrompt = `
# Task Context
You maintain a running summary of a novel that is read one chunk at a time.

# Background Data
Summary so far:
{{if .PreviousSummary}}{{.PreviousSummary}}{{else}}(none yet){{end}}

Characters detected in the new chunk: {{join .Names ", "}}

New chunk:
{{.Chunk}}

# Detailed Task Description & Rules
- Continue the summary so that it covers the new chunk.
- Keep the events that matter for the characters listed above.
- Mention every listed character by the name used in the text.
- Keep it concise: a few paragraphs at most.

# Output Formatting
Return a JSON object with this structure:
{
  "summary": "<updated summary>"
}
`

const profileDiffPrompt = `
# Task Context
You update character profiles of a novel from the latest summary.

# Background Data
Summary:
{{.Summary}}

Characters to update: {{join .Names ", "}}

Existing profiles (JSON):
{{if .Existing}}{{.Existing}}{{else}}[]{{end}}

# Detailed Task Description & Rules
- Return one profile for every character listed above that the summary mentions.
- Keep "name" exactly as in the existing profile, or as listed when the character is new.
- Only include information that is new or changed; leave fields empty when nothing new is known.
- "events" holds pivotal events only; skip routine details.
- "relations" entries must have the form "other name: relation kind", for example "Salim: friend".
- "aliases" lists other names or titles that refer to the same character.

# Output Formatting
Return a JSON object with this structure:
{
  "profiles": [
    {
      "name": "<name>",
      "age": "",
      "role": "",
      "physical_characteristics": [],
      "personality": [],
      "events": [],
      "relations": [],
      "aliases": []
    }
  ]
}
`

const qualityPrompt = `
# Task Context
You assess whether a document is clean enough to be analysed automatically.

# Background Data
Random samples from the document:
{{range $i, $s := .Samples}}
[{{$i}}] {{$s}}
{{end}}

# Detailed Task Description & Rules
- Judge spelling, encoding artefacts, OCR noise, broken words and readability.
- Score 1 for clean prose and 0 for unreadable text.

# Output Formatting
Return a JSON object with this structure:
{
  "quality_score": 0.0,
  "quality_level": "<level>",
  "issues": [],
  "reasoning": "<short reasoning>"
}
`

const classifyPrompt = `
# Task Context
You decide whether a document is a literary narrative (novel, novella, short stories).

# Background Data
Random samples from the document:
{{range $i, $s := .Samples}}
[{{$i}}] {{$s}}
{{end}}

# Detailed Task Description & Rules
- A literary narrative has characters, dialogue or narration, and a plot.
- Scientific, news, technical, religious and historical texts are not literary.

# Output Formatting
Return a JSON object with this structure:
{
  "is_literary": true,
  "classification": "<genre>",
  "confidence": 0.0,
  "features": [],
  "reasoning": "<short reasoning>"
}
`

var funcs = template.FuncMap{
	"join": strings.Join,
}

var prompts = map[PromptID]*Prompt{}

func register(id PromptID, name, description string, temperature float64, text string) {
	prompts[id] = &Prompt{
		ID:          id,
		Name:        name,
		Description: description,
		System:      systemPrompt,
		Temperature: temperature,
		tmpl:        template.Must(template.New(string(id)).Funcs(funcs).Parse(text)),
	}
}

func init() {
	register(PromptNames, "name_query", "Names of the characters present in the passage", 0.0, namesPrompt)
	register(PromptSummary, "summary", "Running summary of the story", 0.7, summaryPrompt)
	register(PromptProfileDiff, "profile_refresher", "Profile updates for the listed characters", 0.0, profileDiffPrompt)
	register(PromptQuality, "text_quality_assessment", "Quality assessment of the document", 0.0, qualityPrompt)
	register(PromptClassify, "text_classification", "Literary classification of the document", 0.0, classifyPrompt)
}

// LookupPrompt returns the registered prompt for id.
func LookupPrompt(id PromptID) (*Prompt, bool) {
	p, ok := prompts[id]
	return p, ok
}

// Render executes the prompt template with vars.
func (p *Prompt) Render(vars any) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.ID, err)
	}
	return strings.TrimSpace(b.String()), nil
}
