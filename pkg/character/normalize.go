package character

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = regexp.MustCompile(
	`^(?:ال)?(?:شيخ|السيد|سيد|معلم|الحاج|الحاجة|الدكتور|دكتور|د\.|الأستاذ|الاستاذ|استاذ)\s+` +
		`|^(?:mrs|mr|ms|dr|sheikh|sir|lady|lord)\.?\s+`,
)

// NormalizeKey maps a display name to its matching key: trimmed, lower
// case, without tatweel or diacritics, without one leading honorific and
// without whitespace. NormalizeKey(NormalizeKey(s)) == NormalizeKey(s).
func NormalizeKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = cases.Lower(language.Und).String(name)
	name = strings.ReplaceAll(name, "ـ", "")
	name = stripMarks(name)
	name = honorifics.ReplaceAllString(name, "")
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
	return norm.NFC.String(name)
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Keys returns the normalized keys of the name and every alias.
func Keys(p Profile) []string {
	seen := make(map[string]struct{}, 1+len(p.Aliases))
	out := make([]string, 0, 1+len(p.Aliases))
	for _, n := range p.Names() {
		k := NormalizeKey(n)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// MatchesKey reports whether key equals the normalized name or an alias of p.
func MatchesKey(p Profile, key string) bool {
	if key == "" {
		return false
	}
	for _, n := range p.Names() {
		if NormalizeKey(n) == key {
			return true
		}
	}
	return false
}
