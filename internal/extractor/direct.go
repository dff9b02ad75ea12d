package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/lu4p/cat"

	"github.com/parchment-ai/corpusd/internal/domain"
)

// DirectStrategy decodes plain text as-is and extracts office formats
// (docx, odt, rtf) structurally, falling back to a raw decode when the
// structural parser cannot handle the file.
type DirectStrategy struct{}

func NewDirectStrategy() *DirectStrategy {
	return &DirectStrategy{}
}

func (s *DirectStrategy) Extract(ctx context.Context, raw []byte, filename string) (*Result, error) {
	if len(raw) == 0 {
		return nil, domain.ErrNoExtractableText
	}

	if isOfficeFilename(filename) {
		if text, err := extractOffice(raw, filename); err == nil && strings.TrimSpace(text) != "" {
			return &Result{
				Text:     strings.TrimSpace(text),
				Metadata: map[string]string{MetaStrategy: "office"},
			}, nil
		}
		// Structural parsing failed; fall through to a raw decode.
	}

	if !utf8.Valid(raw) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
			"content is not valid UTF-8 text", nil)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, domain.ErrNoExtractableText
	}

	return &Result{
		Text:     text,
		Metadata: map[string]string{MetaStrategy: "direct"},
	}, nil
}

func isOfficeFilename(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx", ".odt", ".rtf":
		return true
	}
	return false
}

// extractOffice routes office bytes through the structural parser, which
// dispatches on the file extension.
func extractOffice(raw []byte, filename string) (string, error) {
	tmp, err := os.CreateTemp("", "extract-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("failed to stage office file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to stage office file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to stage office file: %w", err)
	}

	return cat.File(tmp.Name())
}
