package chunker

import (
	"math/rand/v2"
	"strings"
)

// Sample picks n windows of words consecutive words at random positions.
// Short texts yield a single sample holding all of their words.
func Sample(text string, n, words int, rng *rand.Rand) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 || n <= 0 || words <= 0 {
		return nil
	}
	if len(fields) <= words {
		return []string{strings.Join(fields, " ")}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start := rng.IntN(len(fields) - words + 1)
		out = append(out, strings.Join(fields[start:start+words], " "))
	}
	return out
}
