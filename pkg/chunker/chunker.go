// Package chunker splits long documents into overlapping, size bounded
// chunks and prepares raw book text for analysis.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultSize    = 8000
	DefaultOverlap = 200
)

// Separators are tried in order: paragraphs, lines, sentence ends (Latin and
// Arabic), commas, whitespace, then a raw cut between runes.
var Separators = []string{"\n\n", "\n", ". ", "؟ ", "! ", "? ", "، ", "؛ ", " ", ""}

// Chunk is one slice of the document. Index is contiguous from 0.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// LengthFunc measures a piece of text in the unit Size and Overlap use.
type LengthFunc func(string) int

// RuneLength counts unicode code points.
func RuneLength(s string) int {
	return utf8.RuneCountInString(s)
}

// TokenLength measures text in tokens of the given tiktoken encoding.
func TokenLength(encoding string) (LengthFunc, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}

type Options struct {
	Size    int
	Overlap int
	Length  LengthFunc
}

func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap, Length: RuneLength}
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.Size {
		o.Overlap = o.Size / 2
	}
	if o.Length == nil {
		o.Length = RuneLength
	}
	return o
}

// EmptyInputError is returned when there is nothing left to split.
type EmptyInputError struct{}

func (EmptyInputError) Error() string {
	return "document text is empty after normalization"
}

// Split cuts text into chunks of at most opts.Size (measured by opts.Length)
// where consecutive chunks share up to opts.Overlap of text.
func Split(text string, opts Options) (*Sequence, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, EmptyInputError{}
	}
	opts = opts.normalized()

	s := splitter{opts: opts}
	parts := s.split(text, Separators)

	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: p})
	}
	if len(chunks) == 0 {
		return nil, EmptyInputError{}
	}
	return &Sequence{chunks: chunks}, nil
}

type splitter struct {
	opts Options
}

func (s splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var out []string
	var good []string
	for _, piece := range splitKeep(text, sep) {
		if s.opts.Length(piece) <= s.opts.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs pieces greedily into chunks and seeds every new chunk with
// the trailing pieces of the previous one, up to Overlap.
func (s splitter) merge(pieces []string) []string {
	var out []string
	var window []string
	var lengths []int
	total := 0

	for _, piece := range pieces {
		l := s.opts.Length(piece)
		if total+l > s.opts.Size && len(window) > 0 {
			out = append(out, strings.Join(window, ""))
			for len(window) > 0 && (total > s.opts.Overlap || total+l > s.opts.Size) {
				total -= lengths[0]
				window = window[1:]
				lengths = lengths[1:]
			}
		}
		window = append(window, piece)
		lengths = append(lengths, l)
		total += l
	}
	if len(window) > 0 {
		out = append(out, strings.Join(window, ""))
	}
	return out
}

// splitKeep splits on sep and keeps sep at the end of each piece, so that
// joining the pieces restores text. An empty sep splits into runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Sequence is a finite, restartable cursor over the chunks of one document.
type Sequence struct {
	chunks []Chunk
	pos    int
}

// NewSequence wraps already computed chunks, e.g. loaded from a store.
// Indices are rewritten to be contiguous from 0.
func NewSequence(chunks []Chunk) *Sequence {
	cp := make([]Chunk, len(chunks))
	for i, c := range chunks {
		cp[i] = Chunk{Index: i, Text: c.Text}
	}
	return &Sequence{chunks: cp}
}

// Next returns the next chunk, or false once the sequence is exhausted.
func (s *Sequence) Next() (Chunk, bool) {
	if s.pos >= len(s.chunks) {
		return Chunk{}, false
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, true
}

func (s *Sequence) Reset() {
	s.pos = 0
}

func (s *Sequence) Len() int {
	return len(s.chunks)
}

// At returns the chunk with the given index.
func (s *Sequence) At(index int) (Chunk, bool) {
	if index < 0 || index >= len(s.chunks) {
		return Chunk{}, false
	}
	return s.chunks[index], true
}

// All returns a copy of every chunk in order.
func (s *Sequence) All() []Chunk {
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}
