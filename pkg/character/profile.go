// Package character holds the identity model of a book: profiles, their
// merge rules, identity resolution and relationship edges.
package character

import (
	"slices"
	"strings"
)

// Profile is the structured attribute record of a character. List fields
// are sets; Relations entries have the form "other name: kind".
type Profile struct {
	Name                    string   `json:"name"`
	Age                     string   `json:"age,omitempty"`
	Role                    string   `json:"role,omitempty"`
	PhysicalCharacteristics []string `json:"physical_characteristics"`
	Personality             []string `json:"personality"`
	Events                  []string `json:"events"`
	Relations               []string `json:"relations"`
	Aliases                 []string `json:"aliases"`
}

// ProfileUpdate is a partial profile proposed by the model. Empty fields
// carry no new information.
type ProfileUpdate = Profile

// Character is a resolved identity within one book.
type Character struct {
	ID      string  `json:"id"`
	BookID  string  `json:"book_id"`
	Profile Profile `json:"profile"`
}

// Relationship is an undirected edge with CharacterA < CharacterB.
type Relationship struct {
	ID         string `json:"id"`
	BookID     string `json:"book_id"`
	CharacterA string `json:"character_a"`
	CharacterB string `json:"character_b"`
	Kind       string `json:"kind"`
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	p.PhysicalCharacteristics = slices.Clone(p.PhysicalCharacteristics)
	p.Personality = slices.Clone(p.Personality)
	p.Events = slices.Clone(p.Events)
	p.Relations = slices.Clone(p.Relations)
	p.Aliases = slices.Clone(p.Aliases)
	return p
}

// IsEmpty reports whether the update carries nothing besides a name.
func (p Profile) IsEmpty() bool {
	return cleanScalar(p.Age) == "" &&
		cleanScalar(p.Role) == "" &&
		len(p.PhysicalCharacteristics) == 0 &&
		len(p.Personality) == 0 &&
		len(p.Events) == 0 &&
		len(p.Relations) == 0 &&
		len(p.Aliases) == 0
}

// Names returns the canonical name followed by the aliases.
func (p Profile) Names() []string {
	out := make([]string, 0, 1+len(p.Aliases))
	out = append(out, p.Name)
	return append(out, p.Aliases...)
}

// RenderProfile flattens a profile into the text that gets embedded.
func RenderProfile(p Profile) string {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteString(" | ")
	b.WriteString(p.Role)
	b.WriteString(" | events: ")
	b.WriteString(strings.Join(p.Events, ", "))
	b.WriteString(" | relations: ")
	b.WriteString(strings.Join(p.Relations, ", "))
	b.WriteString(" | personality: ")
	b.WriteString(strings.Join(p.Personality, ", "))
	b.WriteString(" | aliases: ")
	b.WriteString(strings.Join(p.Aliases, ", "))
	return b.String()
}
