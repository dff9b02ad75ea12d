// Package extractor turns raw document content into plain text, with one
// strategy per content kind.
package extractor

import (
	"context"

	"github.com/parchment-ai/corpusd/internal/domain"
)

// Metadata keys reported by extraction strategies.
const (
	MetaSourceURL        = "source_url"
	MetaPageCount        = "page_count"
	MetaPagesFetched     = "pages_fetched"
	MetaStrategy         = "strategy"
	MetaRobotsDisallowed = "robots_disallowed"
)

// Result is the outcome of a successful extraction attempt. Text may be
// empty only for defined non-error outcomes (a robots-disallowed fetch);
// callers must treat empty text as an extraction-quality failure. Text is
// never reported as missing: a strategy either returns a Result or an error.
type Result struct {
	Text     string
	Metadata map[string]string
}

// Strategy extracts text from raw content of one content kind.
type Strategy interface {
	Extract(ctx context.Context, raw []byte, filename string) (*Result, error)
}

// Registry dispatches extraction to the strategy registered for a content
// kind. The kind set is closed: adding a kind means registering a strategy
// for it here.
type Registry struct {
	strategies map[domain.ContentKind]Strategy
}

// NewRegistry builds the production strategy set.
func NewRegistry(ocr *OCRStrategy, web *WebStrategy, direct *DirectStrategy) *Registry {
	return &Registry{
		strategies: map[domain.ContentKind]Strategy{
			domain.ContentKindImage:    ocr,
			domain.ContentKindPDF:      ocr,
			domain.ContentKindURL:      web,
			domain.ContentKindText:     direct,
			domain.ContentKindDocument: direct,
		},
	}
}

// NewRegistryWithStrategies builds a registry from an explicit kind mapping.
func NewRegistryWithStrategies(strategies map[domain.ContentKind]Strategy) *Registry {
	return &Registry{strategies: strategies}
}

// Extract runs the strategy for the given kind. Unknown or unregistered
// kinds are a permanent classification failure, not a retryable error.
func (r *Registry) Extract(ctx context.Context, kind domain.ContentKind, raw []byte, filename string) (*Result, error) {
	strategy, ok := r.strategies[kind]
	if !ok {
		return nil, domain.ErrUnknownContent
	}
	return strategy.Extract(ctx, raw, filename)
}
