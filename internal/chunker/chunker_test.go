package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmpty(t *testing.T) {
	cfg := DefaultConfig()

	assert.Empty(t, Split("", cfg))
	assert.Empty(t, Split("   \n\t  ", cfg))
}

func TestSplitShortText(t *testing.T) {
	chunks := Split("Contact us at test@company.com for support.", DefaultConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, "Contact us at test@company.com for support.", chunks[0])
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	// Two sentences; the first ends inside the back half of the chunk window,
	// so the first chunk should cut after it rather than mid-sentence.
	first := strings.Repeat("alpha ", 20) + "end of thought."
	second := " " + strings.Repeat("beta ", 40)
	chunks := Split(first+second, Config{Size: 160, Overlap: 20})

	require.NotEmpty(t, chunks)
	assert.True(t, strings.HasSuffix(chunks[0], "end of thought."),
		"first chunk should end at the sentence boundary, got %q", chunks[0])
}

func TestSplitRawCutWithoutBoundary(t *testing.T) {
	text := strings.Repeat("a", 2000)
	chunks := Split(text, Config{Size: 800, Overlap: 200})

	require.NotEmpty(t, chunks)
	assert.Len(t, []rune(chunks[0]), 800)
}

func TestSplitTerminationBound(t *testing.T) {
	// Boundary-free text advances exactly size-overlap runes per step, so the
	// chunk count must stay within ceil(len / (size - overlap)).
	size, overlap := 100, 30
	for _, n := range []int{1, 99, 100, 101, 500, 1000, 7777} {
		text := strings.Repeat("x", n)
		chunks := Split(text, Config{Size: size, Overlap: overlap})
		bound := (n + size - overlap - 1) / (size - overlap)
		if bound < 1 {
			bound = 1
		}
		assert.LessOrEqual(t, len(chunks), bound+1, "n=%d", n)
		assert.NotEmpty(t, chunks)
	}
}

func TestSplitCoversAllContent(t *testing.T) {
	// Every non-whitespace character of the input must appear in the chunk
	// sequence; overlap may duplicate content but never lose it.
	words := make([]string, 0, 600)
	for i := 0; i < 600; i++ {
		words = append(words, "w"+string(rune('a'+i%26)))
	}
	text := strings.Join(words, " ") + ". The end."
	chunks := Split(text, Config{Size: 200, Overlap: 50})
	require.NotEmpty(t, chunks)

	joined := strings.Join(chunks, " ")
	stripped := strings.Join(strings.Fields(text), " ")
	for _, word := range strings.Fields(stripped) {
		assert.Contains(t, joined, word)
	}
}

func TestSplitDegenerateConfigs(t *testing.T) {
	text := strings.Repeat("some sentence here. ", 100)

	// Zero size falls back to defaults.
	assert.NotEmpty(t, Split(text, Config{}))

	// Overlap >= size is clamped rather than looping forever.
	chunks := Split(text, Config{Size: 100, Overlap: 100})
	assert.NotEmpty(t, chunks)

	chunks = Split(text, Config{Size: 100, Overlap: 500})
	assert.NotEmpty(t, chunks)
}

func TestSplitChunksNonEmptyAndTrimmed(t *testing.T) {
	text := strings.Repeat("sentence one.  \n\n  ", 200)
	for _, c := range Split(text, Config{Size: 120, Overlap: 30}) {
		assert.Equal(t, strings.TrimSpace(c), c)
		assert.NotEmpty(t, c)
	}
}
