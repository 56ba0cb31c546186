package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb", "a\nb"},
		{"zero width", "أح\u200bمد", "أحمد"},
		{"tatweel run", "كتـــــاب", "كتاب"},
		{"single tatweel kept", "كتـاب", "كتـاب"},
		{"page number line", "سطر\n- ١٢ -\nسطر", "سطر\nسطر"},
		{"latin page number", "line\n  42  \nline", "line\nline"},
		{"spaces", "a    b\t\tc", "a b c"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"control", "a\x07b", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStripMetadata(t *testing.T) {
	text := strings.Join([]string{
		"دار الشروق للنشر",
		"جميع الحقوق محفوظة",
		"إلى أمي",
		"الفصل الأول",
		"كان أحمد يسير في الطريق.",
		"",
	}, "\n")

	got := StripMetadata(text, DefaultMetadataOptions())
	want := "الفصل الأول\nكان أحمد يسير في الطريق.\n"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestStripMetadataWithoutStartLine(t *testing.T) {
	text := "Copyright 2020 Some Press\nAhmed walked home slowly.\n"
	got := StripMetadata(text, DefaultMetadataOptions())
	if got != "Ahmed walked home slowly.\n" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestStripMetadataLeavesTextAfterWindow(t *testing.T) {
	head := strings.Repeat("ن", 50) + "\n"
	text := head + "published by nobody\n"
	opts := DefaultMetadataOptions()
	opts.SearchWindow = 10

	if got := StripMetadata(text, opts); got != text {
		t.Fatalf("expected text after the window to be untouched, got %q", got)
	}
}

func TestSampleDeterministic(t *testing.T) {
	var words []string
	for i := 0; i < 100; i++ {
		words = append(words, "w"+strings.Repeat("x", i%5))
	}
	text := strings.Join(words, " ")

	a := Sample(text, 5, 30, rand.New(rand.NewPCG(1, 2)))
	b := Sample(text, 5, 30, rand.New(rand.NewPCG(1, 2)))
	if len(a) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic samples")
		}
		if n := len(strings.Fields(a[i])); n != 30 {
			t.Fatalf("expected 30 words, got %d", n)
		}
	}

	short := Sample("one two", 5, 30, nil)
	if len(short) != 1 || short[0] != "one two" {
		t.Fatalf("expected one short sample, got %v", short)
	}
}
