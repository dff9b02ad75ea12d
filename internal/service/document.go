package service

import (
	"context"
	"log"

	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/telemetry"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

// DocumentService serves ledger reads and owns the delete cascade across the
// vector store, keyword index, content store, and ledger.
type DocumentService struct {
	ledger  DocumentLedger
	store   VectorStore
	keyword KeywordIndex
	content ContentStore
}

// NewDocumentService creates a DocumentService. keyword and content may be
// nil when those subsystems are not configured.
func NewDocumentService(ledger DocumentLedger, store VectorStore, keyword KeywordIndex, content ContentStore) *DocumentService {
	return &DocumentService{ledger: ledger, store: store, keyword: keyword, content: content}
}

// Get returns one document, scoped to the calling tenant and agent. A
// document owned by anyone else reads as not found.
func (s *DocumentService) Get(ctx context.Context, tenantID, agentID, id string) (*domain.Document, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if agentID == "" {
		return nil, domain.ErrMissingAgent
	}

	doc, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tenantID || doc.AgentID != agentID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// List returns one page of a tenant's documents with the total count.
func (s *DocumentService) List(ctx context.Context, tenantID, agentID string, limit, offset int) ([]*domain.Document, int, error) {
	return s.ledger.List(ctx, tenantID, agentID, limit, offset)
}

// GetChunks returns the stored chunks of a document, ordered by index.
func (s *DocumentService) GetChunks(ctx context.Context, tenantID, agentID, id string) ([]vectorstore.Match, error) {
	if _, err := s.Get(ctx, tenantID, agentID, id); err != nil {
		return nil, err
	}
	return s.store.GetDocumentChunks(ctx, tenantID, agentID, id)
}

// Stats returns ledger counts per status for one tenant and agent.
func (s *DocumentService) Stats(ctx context.Context, tenantID, agentID string) (map[domain.DocumentStatus]int, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if agentID == "" {
		return nil, domain.ErrMissingAgent
	}
	return s.ledger.CountByStatus(ctx, tenantID, agentID)
}

// Delete removes a document everywhere: vectors first, then the keyword
// index and offloaded content, and the ledger row last so a failed cascade
// stays visible to reconciliation.
func (s *DocumentService) Delete(ctx context.Context, tenantID, agentID, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		TenantID:   tenantID,
		AgentID:    agentID,
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	doc, err := s.Get(ctx, tenantID, agentID, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteDocument(ctx, tenantID, agentID, id); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStore,
			"failed to delete document vectors", err)
	}

	if s.keyword != nil {
		if err := s.keyword.DeleteDocument(ctx, id); err != nil {
			log.Printf("document: failed to delete keyword entries for %s: %v", id, err)
		}
	}

	if s.content != nil {
		if _, key, err := s.ledger.GetContent(ctx, doc.ID); err == nil && key != "" {
			if err := s.content.DeleteObject(ctx, key); err != nil {
				log.Printf("document: failed to delete offloaded content for %s: %v", id, err)
			}
		}
	}

	return s.ledger.Delete(ctx, id)
}
