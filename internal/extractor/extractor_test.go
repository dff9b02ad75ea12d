package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parchment-ai/corpusd/internal/domain"
)

type stubStrategy struct {
	result *Result
	err    error
	calls  int
}

func (s *stubStrategy) Extract(ctx context.Context, raw []byte, filename string) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func TestRegistryDispatchesByKind(t *testing.T) {
	text := &stubStrategy{result: &Result{Text: "from text"}}
	pdf := &stubStrategy{result: &Result{Text: "from pdf"}}
	registry := NewRegistryWithStrategies(map[domain.ContentKind]Strategy{
		domain.ContentKindText: text,
		domain.ContentKindPDF:  pdf,
	})

	result, err := registry.Extract(context.Background(), domain.ContentKindPDF, []byte("%PDF"), "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, "from pdf", result.Text)
	assert.Equal(t, 1, pdf.calls)
	assert.Equal(t, 0, text.calls)
}

func TestRegistryUnknownKindIsPermanentFailure(t *testing.T) {
	registry := NewRegistryWithStrategies(map[domain.ContentKind]Strategy{})

	_, err := registry.Extract(context.Background(), domain.ContentKindUnknown, []byte{0x01}, "blob")

	assert.ErrorIs(t, err, domain.ErrUnknownContent)
	assert.False(t, domain.IsRetryable(err))
}
