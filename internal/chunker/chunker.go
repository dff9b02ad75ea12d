// Package chunker splits extracted text into overlapping, sentence-aware
// segments for embedding.
package chunker

import "strings"

// Config controls chunk sizing. Size and Overlap are in runes.
type Config struct {
	Size    int
	Overlap int
}

// DefaultConfig provides sane defaults for chunking.
func DefaultConfig() Config {
	return Config{
		Size:    800,
		Overlap: 200,
	}
}

// Split walks text from the beginning, ending each chunk at the configured
// size but preferring the nearest sentence-ending punctuation or blank line
// in the back half of the window. The next chunk starts Overlap runes before
// the previous end; a non-advancing step is forced forward to guarantee
// termination. Whitespace-only input yields zero chunks, which callers must
// treat as an extraction-quality failure, not an error here.
func Split(text string, cfg Config) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.Size <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 4
	}

	runes := []rune(clean)
	if len(runes) <= cfg.Size {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/(cfg.Size-cfg.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.Size
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			end = boundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// boundary searches backward from end for the nearest sentence-ending
// punctuation or blank-line break, returning the position just after it.
// The search stops at the midpoint of the window so a boundary-heavy text
// cannot degenerate into tiny chunks; without a boundary the raw end stands.
func boundary(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for i := end; i > floor; i-- {
		switch runes[i-1] {
		case '.', '!', '?':
			return i
		case '\n':
			if i >= 2 && runes[i-2] == '\n' {
				return i
			}
		}
	}
	return end
}
