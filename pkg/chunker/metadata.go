package chunker

import (
	"strings"
	"unicode/utf8"
)

type MetadataOptions struct {
	SearchWindow  int
	MaxLineLength int
	Keywords      []string
	StartKeywords []string
}

// DefaultMetadataOptions covers Arabic front matter plus common English terms.
func DefaultMetadataOptions() MetadataOptions {
	return MetadataOptions{
		SearchWindow:  2000,
		MaxLineLength: 80,
		Keywords: []string{
			"نشر", "ترجمة", "شركة", "صحافة", "طباعة", "توزيع", "موافقة",
			"ناشر", "غلاف", "تأليف", "مركز", "دار", "حقوق", "محفوظة",
			"كاتب", "أديب", "مؤلف", "رقم", "تاريخ", "رواية", "كتاب",
			"نسخة", "قانون", "مترجم", "طبعة", "تحرير", "محرر", "إهداء", "فاكس",
			"publisher", "published by", "translated", "translation", "copyright",
			"all rights reserved", "edition", "isbn", "dedication", "dedicated to",
		},
		StartKeywords: []string{"فصل", "أول", "جزء", "chapter", "part one", "prologue"},
	}
}

// StripMetadata removes front matter from the head of text. Inside the
// first SearchWindow runes, short lines containing a metadata keyword are
// dropped. When a short line containing a start keyword (and no metadata
// keyword) is found there, every short line before it is dropped as well.
// The rest of the text is returned unchanged.
func StripMetadata(text string, opts MetadataOptions) string {
	if text == "" || opts.SearchWindow <= 0 {
		return text
	}
	def := DefaultMetadataOptions()
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = def.MaxLineLength
	}

	lines := strings.SplitAfter(text, "\n")
	inWindow := 0
	offset := 0
	for inWindow < len(lines) && offset < opts.SearchWindow {
		offset += utf8.RuneCountInString(lines[inWindow])
		inWindow++
	}

	isShort := func(l string) bool {
		return utf8.RuneCountInString(strings.TrimSpace(l)) <= opts.MaxLineLength
	}

	start := -1
	for i := 0; i < inWindow; i++ {
		if isShort(lines[i]) && containsAny(lines[i], opts.StartKeywords) && !containsAny(lines[i], opts.Keywords) {
			start = i
			break
		}
	}

	var b strings.Builder
	for i, l := range lines {
		if i < inWindow {
			trimmed := strings.TrimSpace(l)
			if trimmed != "" && isShort(l) {
				if start > 0 && i < start {
					continue
				}
				if i != start && containsAny(l, opts.Keywords) {
					continue
				}
			}
		}
		b.WriteString(l)
	}
	return strings.TrimLeft(b.String(), " \t\n")
}

func containsAny(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
