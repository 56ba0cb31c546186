package character

import (
	"fmt"
	"slices"
	"strings"
)

// InvalidProfileUpdateError rejects a proposed update that cannot be
// attributed to a character.
type InvalidProfileUpdateError struct {
	Reason string
}

func (e *InvalidProfileUpdateError) Error() string {
	return fmt.Sprintf("invalid profile update: %s", e.Reason)
}

// ValidateUpdate checks that an update names the character it belongs to.
func ValidateUpdate(update ProfileUpdate) error {
	if strings.TrimSpace(update.Name) == "" {
		return &InvalidProfileUpdateError{Reason: "missing name"}
	}
	return nil
}

// Merge folds update into existing. The canonical name never changes;
// rawName becomes an alias when it differs from it. List fields only grow.
func Merge(existing Profile, update ProfileUpdate, rawName string) (Profile, error) {
	if err := ValidateUpdate(update); err != nil {
		return existing, err
	}

	out := existing.Clone()
	if v := cleanScalar(update.Age); v != "" {
		out.Age = v
	}
	if v := cleanScalar(update.Role); v != "" {
		out.Role = v
	}
	out.PhysicalCharacteristics = mergeList(out.PhysicalCharacteristics, update.PhysicalCharacteristics)
	out.Personality = mergeList(out.Personality, update.Personality)
	out.Events = mergeList(out.Events, update.Events)
	out.Relations = mergeRelations(out.Relations, update.Relations)

	aliases := slices.Clone(update.Aliases)
	if raw := strings.TrimSpace(rawName); raw != "" && raw != out.Name {
		aliases = append(aliases, raw)
	}
	aliases = slices.DeleteFunc(aliases, func(a string) bool {
		return strings.TrimSpace(a) == out.Name
	})
	out.Aliases = mergeList(out.Aliases, aliases)

	return out, nil
}

func cleanScalar(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "none", "null", "unknown", "n/a":
		return ""
	}
	return s
}

// mergeList appends the trimmed, non-empty values of add that old does not
// already contain. old is returned untouched when nothing is new.
func mergeList(old, add []string) []string {
	if len(add) == 0 {
		return old
	}
	seen := make(map[string]struct{}, len(old)+len(add))
	for _, v := range old {
		seen[v] = struct{}{}
	}
	out := old
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// mergeRelations treats relation statements as a map keyed by the other
// character's name. Keys keep their first-seen position; a newer kind
// overwrites the older one.
func mergeRelations(old, add []string) []string {
	if len(add) == 0 {
		return old
	}
	out := slices.Clone(old)
	index := make(map[string]int, len(old)+len(add))
	for i, rel := range out {
		if other, _, ok := ParseRelation(rel); ok {
			index[other] = i
		}
	}
	for _, rel := range add {
		other, kind, ok := ParseRelation(rel)
		if !ok {
			continue
		}
		formatted := FormatRelation(other, kind)
		if i, exists := index[other]; exists {
			out[i] = formatted
			continue
		}
		index[other] = len(out)
		out = append(out, formatted)
	}
	return out
}

// RelationMap returns the relation statements of p keyed by other name.
func RelationMap(p Profile) map[string]string {
	out := make(map[string]string, len(p.Relations))
	for _, rel := range p.Relations {
		if other, kind, ok := ParseRelation(rel); ok {
			out[other] = kind
		}
	}
	return out
}
