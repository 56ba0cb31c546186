package util

import "strings"

func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizePostgresTexts applies SanitizePostgresText to every element and
// returns a new slice. A nil input stays nil.
func SanitizePostgresTexts(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = SanitizePostgresText(v)
	}
	return out
}
