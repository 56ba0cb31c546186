package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	pageNumberLine = regexp.MustCompile(`^[-–—]*\s*[0-9٠-٩۰-۹]+\s*[-–—]*$`)
	tatweelRun     = regexp.MustCompile(`ـ{2,}`)
	horizontalWS   = regexp.MustCompile(`[ \t\p{Zs}]+`)
	manyNewlines   = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes raw book text: NFC, unix newlines, no control or
// invisible formatting characters, no decorative tatweel, no page number
// lines and collapsed whitespace.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case isInvisible(r):
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)

	text = tatweelRun.ReplaceAllString(text, "")
	text = horizontalWS.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if pageNumberLine.MatchString(l) {
			continue
		}
		kept = append(kept, l)
	}
	text = strings.Join(kept, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func isInvisible(r rune) bool {
	switch r {
	case '\u200b', '\u200d', '\u200e', '\u200f', '\u2060', '\ufeff', '\u061c', '\u00ad':
		return true
	}
	return unicode.In(r, unicode.Bidi_Control)
}
