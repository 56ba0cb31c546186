package ai

// NameEntry is a single character name found in a window.
type NameEntry struct {
	Name string `json:"name" jsonschema:"description=Name of the character exactly as written in the text"`
}

type NamesResponse struct {
	Characters []NameEntry `json:"characters" jsonschema:"description=Characters present in the text"`
}

// Names returns the raw names in response order.
func (r NamesResponse) Names() []string {
	out := make([]string, 0, len(r.Characters))
	for _, c := range r.Characters {
		out = append(out, c.Name)
	}
	return out
}

type SummaryResponse struct {
	Summary string `json:"summary" jsonschema:"description=Updated running summary of the story so far"`
}

// ProfileData is one proposed profile update.
type ProfileData struct {
	Name                    string   `json:"name" jsonschema:"description=Character name as given in the existing profile or the detected names; never changed"`
	Age                     string   `json:"age" jsonschema:"description=Age or age description if stated; empty when unknown"`
	Role                    string   `json:"role" jsonschema:"description=Role in the story (protagonist, secondary, narrator, ...)"`
	PhysicalCharacteristics []string `json:"physical_characteristics" jsonschema:"description=Physical traits stated or implied"`
	Personality             []string `json:"personality" jsonschema:"description=Psychological or behavioural traits"`
	Events                  []string `json:"events" jsonschema:"description=Pivotal events that shaped the character; skip routine details"`
	Relations               []string `json:"relations" jsonschema:"description=Relations as 'other name: relation kind'"`
	Aliases                 []string `json:"aliases" jsonschema:"description=Other names or titles used for the character"`
}

type ProfileDiffResponse struct {
	Profiles []ProfileData `json:"profiles" jsonschema:"description=Updated profiles of the characters"`
}

type QualityResponse struct {
	Score     float64  `json:"quality_score" jsonschema:"description=Text quality from 0 (unusable) to 1 (excellent)"`
	Level     string   `json:"quality_level" jsonschema:"description=excellent, good, average, poor or very poor"`
	Issues    []string `json:"issues" jsonschema:"description=Problems found in the text"`
	Reasoning string   `json:"reasoning" jsonschema:"description=Short justification of the score"`
}

type ClassificationResponse struct {
	IsLiterary     bool     `json:"is_literary" jsonschema:"description=True when the text is a literary narrative"`
	Classification string   `json:"classification" jsonschema:"description=Genre of the text (literary, scientific, news, technical, religious, historical, ...)"`
	Confidence     float64  `json:"confidence" jsonschema:"description=Confidence from 0 to 1"`
	Features       []string `json:"features" jsonschema:"description=Features supporting the classification"`
	Reasoning      string   `json:"reasoning" jsonschema:"description=Short justification"`
}
