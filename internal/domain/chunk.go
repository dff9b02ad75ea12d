package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Chunk is a bounded text segment derived from a document. Chunks are
// ephemeral: they exist only between extraction and vector storage and are
// never persisted independently of their vector-store entry.
type Chunk struct {
	DocumentID string
	Index      int
	Total      int
	Text       string
}

// Hash returns a hex-encoded SHA-256 of the chunk text, used as a cheap
// identity for deduplication diagnostics.
func (c Chunk) Hash() string {
	sum := sha256.Sum256([]byte(c.Text))
	return hex.EncodeToString(sum[:])
}

// Preview returns the first n runes of the chunk text for storage alongside
// the vector entry.
func (c Chunk) Preview(n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(c.Text)
	if len(runes) <= n {
		return c.Text
	}
	return string(runes[:n])
}
