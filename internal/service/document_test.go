package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

func seedDocument(t *testing.T, ledger *fakeLedger, id, tenantID, agentID string, status domain.DocumentStatus) *domain.Document {
	t.Helper()
	now := time.Now().UTC()
	doc := domain.NewDocument(id, tenantID, agentID, id+".txt", domain.ContentKindText, nil, 4, now)
	doc.Status = status
	require.NoError(t, ledger.Create(context.Background(), doc, []byte("body"), ""))
	return doc
}

func TestDocumentGetScopesToOwner(t *testing.T) {
	ledger := newFakeLedger()
	seedDocument(t, ledger, "doc-1", "t1", "a1", domain.DocumentStatusCompleted)
	svc := NewDocumentService(ledger, newFakeVectorStore(), nil, nil)

	doc, err := svc.Get(context.Background(), "t1", "a1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)

	_, err = svc.Get(context.Background(), "t2", "a1", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = svc.Get(context.Background(), "t1", "other-agent", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = svc.Get(context.Background(), "", "a1", "doc-1")
	assert.ErrorIs(t, err, domain.ErrMissingTenant)
}

func TestDocumentGetChunks(t *testing.T) {
	ledger := newFakeLedger()
	seedDocument(t, ledger, "doc-1", "t1", "a1", domain.DocumentStatusCompleted)
	store := newFakeVectorStore()
	store.chunks["doc-1"] = []vectorstore.Match{
		{ID: "c0", Text: "first"},
		{ID: "c1", Text: "second"},
	}
	svc := NewDocumentService(ledger, store, nil, nil)

	chunks, err := svc.GetChunks(context.Background(), "t1", "a1", "doc-1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	_, err = svc.GetChunks(context.Background(), "t2", "a1", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentStats(t *testing.T) {
	ledger := newFakeLedger()
	seedDocument(t, ledger, "doc-1", "t1", "a1", domain.DocumentStatusCompleted)
	seedDocument(t, ledger, "doc-2", "t1", "a1", domain.DocumentStatusFailed)
	seedDocument(t, ledger, "doc-3", "t1", "a1", domain.DocumentStatusCompleted)
	seedDocument(t, ledger, "doc-4", "t2", "a1", domain.DocumentStatusCompleted)
	svc := NewDocumentService(ledger, newFakeVectorStore(), nil, nil)

	stats, err := svc.Stats(context.Background(), "t1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats[domain.DocumentStatusCompleted])
	assert.Equal(t, 1, stats[domain.DocumentStatusFailed])
}

func TestDocumentDeleteCascades(t *testing.T) {
	ledger := newFakeLedger()
	seedDocument(t, ledger, "doc-1", "t1", "a1", domain.DocumentStatusCompleted)
	store := newFakeVectorStore()
	keyword := &fakeKeywordIndex{}
	svc := NewDocumentService(ledger, store, keyword, nil)

	require.NoError(t, svc.Delete(context.Background(), "t1", "a1", "doc-1"))

	assert.Equal(t, []string{"doc-1"}, store.deleted)
	assert.Equal(t, []string{"doc-1"}, keyword.deleted)
	_, err := ledger.GetByID(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentDeleteRemovesOffloadedContent(t *testing.T) {
	ledger := newFakeLedger()
	now := time.Now().UTC()
	doc := domain.NewDocument("doc-1", "t1", "a1", "doc-1.txt", domain.ContentKindText, nil, 4, now)
	doc.Status = domain.DocumentStatusCompleted
	require.NoError(t, ledger.Create(context.Background(), doc, nil, "content/doc-1"))

	content := newFakeContentStore()
	content.objects["content/doc-1"] = []byte("body")
	svc := NewDocumentService(ledger, newFakeVectorStore(), nil, content)

	require.NoError(t, svc.Delete(context.Background(), "t1", "a1", "doc-1"))
	assert.Equal(t, []string{"content/doc-1"}, content.deleted)
}

func TestDocumentDeleteVectorFailureKeepsLedgerRow(t *testing.T) {
	// The ledger row is removed last so a partial cascade stays visible to
	// reconciliation instead of silently orphaning vectors.
	ledger := newFakeLedger()
	seedDocument(t, ledger, "doc-1", "t1", "a1", domain.DocumentStatusCompleted)
	store := newFakeVectorStore()
	store.deleteErr = errors.New("qdrant unavailable")
	svc := NewDocumentService(ledger, store, nil, nil)

	err := svc.Delete(context.Background(), "t1", "a1", "doc-1")
	require.Error(t, err)

	doc, getErr := ledger.GetByID(context.Background(), "doc-1")
	require.NoError(t, getErr)
	assert.Equal(t, "doc-1", doc.ID)
}

func TestDocumentDeleteScopesToOwner(t *testing.T) {
	ledger := newFakeLedger()
	seedDocument(t, ledger, "doc-1", "t1", "a1", domain.DocumentStatusCompleted)
	store := newFakeVectorStore()
	svc := NewDocumentService(ledger, store, nil, nil)

	err := svc.Delete(context.Background(), "t2", "a1", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.Empty(t, store.deleted)
}
