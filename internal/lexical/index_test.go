package lexical

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parchment-ai/corpusd/internal/domain"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func entry(tenant, agent, doc string, chunk int, text string) Entry {
	return Entry{
		ID:         fmt.Sprintf("%s-%d", doc, chunk),
		TenantID:   tenant,
		AgentID:    agent,
		DocumentID: doc,
		ChunkIndex: chunk,
		Text:       text,
	}
}

func TestIndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.IndexChunks([]Entry{
		entry("t1", "a1", "doc-1", 0, "refund policy takes five days"),
		entry("t1", "a1", "doc-1", 1, "shipping is free over fifty dollars"),
	}))

	matches, err := idx.Search(context.Background(), "t1", "a1", "refund", 10)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-1", matches[0].DocumentID)
	assert.Equal(t, 0, matches[0].ChunkIndex)
	assert.Contains(t, matches[0].Text, "refund")
}

func TestSearchIsTenantScoped(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.IndexChunks([]Entry{
		entry("t1", "a1", "doc-1", 0, "invoice number INV-9981"),
		entry("t2", "a1", "doc-2", 0, "invoice number INV-9981"),
		entry("t1", "a2", "doc-3", 0, "invoice number INV-9981"),
	}))

	matches, err := idx.Search(context.Background(), "t1", "a1", "invoice", 10)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-1", matches[0].DocumentID)
}

func TestSearchRequiresTenantAndAgent(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Search(context.Background(), "", "a1", "anything", 10)
	assert.ErrorIs(t, err, domain.ErrMissingTenant)

	_, err = idx.Search(context.Background(), "t1", "", "anything", 10)
	assert.ErrorIs(t, err, domain.ErrMissingAgent)
}

func TestDeleteDocument(t *testing.T) {
	idx := newTestIndex(t)

	require.NoError(t, idx.IndexChunks([]Entry{
		entry("t1", "a1", "doc-1", 0, "keep me around"),
		entry("t1", "a1", "doc-2", 0, "delete me please"),
		entry("t1", "a1", "doc-2", 1, "delete me too"),
	}))

	require.NoError(t, idx.DeleteDocument(context.Background(), "doc-2"))

	matches, err := idx.Search(context.Background(), "t1", "a1", "delete", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = idx.Search(context.Background(), "t1", "a1", "keep", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestIndexEmptyBatchIsNoOp(t *testing.T) {
	idx := newTestIndex(t)

	assert.NoError(t, idx.IndexChunks(nil))
}
