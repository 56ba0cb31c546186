package character

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

// ParseRelation splits "other: kind" on the first ASCII or full-width
// colon. Both sides are trimmed and must be non-empty.
func ParseRelation(s string) (other, kind string, ok bool) {
	i := strings.IndexAny(s, ":：")
	if i < 0 {
		return "", "", false
	}
	sep := ":"
	if strings.HasPrefix(s[i:], "：") {
		sep = "："
	}
	other = strings.TrimSpace(s[:i])
	kind = strings.TrimSpace(s[i+len(sep):])
	if other == "" || kind == "" {
		return "", "", false
	}
	return other, kind, true
}

// FormatRelation is the inverse of ParseRelation.
func FormatRelation(other, kind string) string {
	return other + ": " + kind
}

// CanonicalPair orders two character ids so that a <= b.
func CanonicalPair(x, y string) (a, b string) {
	if y < x {
		return y, x
	}
	return x, y
}

// CharacterFinder looks a character up by the normalized key of its name
// or one of its aliases. A miss returns nil without error.
type CharacterFinder interface {
	FindByName(ctx context.Context, bookID, name string) (*Character, error)
}

// RelationshipUpserter stores an undirected edge, reporting whether the row
// was created.
type RelationshipUpserter interface {
	Upsert(ctx context.Context, characterA, characterB, kind, bookID string) (Relationship, bool, error)
}

// Report summarizes one extraction pass over a profile.
type Report struct {
	Created    int
	Updated    int
	Unresolved []string
	Malformed  []string
	Edges      []Relationship
}

// Extractor turns relation statements into relationship rows.
type Extractor struct {
	finder CharacterFinder
	upsert RelationshipUpserter
}

func NewExtractor(finder CharacterFinder, upsert RelationshipUpserter) *Extractor {
	return &Extractor{finder: finder, upsert: upsert}
}

// Extract resolves the other side of every relation of self by exact key
// and upserts the canonical edge. Names that resolve to nothing are
// reported, never fatal.
func (e *Extractor) Extract(ctx context.Context, bookID string, self Character) (Report, error) {
	var report Report
	for _, rel := range self.Profile.Relations {
		otherName, kind, ok := ParseRelation(rel)
		if !ok {
			report.Malformed = append(report.Malformed, rel)
			continue
		}

		other, err := e.finder.FindByName(ctx, bookID, otherName)
		if err != nil {
			return report, fmt.Errorf("find %q: %w", otherName, err)
		}
		if other == nil {
			report.Unresolved = append(report.Unresolved, otherName)
			continue
		}
		if other.ID == self.ID {
			continue
		}

		a, b := CanonicalPair(self.ID, other.ID)
		edge, created, err := e.upsert.Upsert(ctx, a, b, kind, bookID)
		if err != nil {
			return report, fmt.Errorf("upsert relationship %s-%s: %w", a, b, err)
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
		report.Edges = append(report.Edges, edge)
	}

	if len(report.Unresolved) > 0 {
		logger.Debug("[Relations] Unresolved relation targets", "character", self.Profile.Name, "names", report.Unresolved)
	}
	return report, nil
}
