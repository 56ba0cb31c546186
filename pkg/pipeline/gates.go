package pipeline

import (
	"strings"
	"unicode"
)

// ScriptRatio returns the share of letters in text that belong to script.
// Text without letters scores 0.
func ScriptRatio(text string, script *unicode.RangeTable) float64 {
	var letters, inScript int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(script, r) {
			inScript++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(inScript) / float64(letters)
}

// LookupScript resolves a script name such as "arabic" or "Latin".
func LookupScript(name string) (*unicode.RangeTable, bool) {
	name = strings.TrimSpace(name)
	for k, t := range unicode.Scripts {
		if strings.EqualFold(k, name) {
			return t, true
		}
	}
	return nil, false
}
