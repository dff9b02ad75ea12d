// Package lexical maintains a keyword index over stored chunks, complementing
// vector search with exact-term recall for identifiers, codes, and names that
// embeddings blur.
package lexical

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/parchment-ai/corpusd/internal/domain"
)

const deleteScanBatch = 500

// Entry is one chunk in the keyword index.
type Entry struct {
	ID         string
	TenantID   string
	AgentID    string
	DocumentID string
	ChunkIndex int
	Text       string
}

// Match is one keyword search hit.
type Match struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Text       string
	Score      float64
}

// Index wraps a bleve index. Tenant and agent are stored as keyword fields
// and every query is filtered on both.
type Index struct {
	idx bleve.Index
}

// NewIndex opens or creates a keyword index at path. An empty path builds an
// in-memory index, used in tests and when persistence is not configured.
func NewIndex(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(indexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory keyword index: %w", err)
		}
		return &Index{idx: idx}, nil
	}

	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
		return &Index{idx: idx}, nil
	}

	idx, err := bleve.New(path, indexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	return &Index{idx: idx}, nil
}

func indexMapping() *mapping.IndexMappingImpl {
	keyword := bleve.NewKeywordFieldMapping()
	text := bleve.NewTextFieldMapping()
	numeric := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("tenant_id", keyword)
	doc.AddFieldMappingsAt("agent_id", keyword)
	doc.AddFieldMappingsAt("document_id", keyword)
	doc.AddFieldMappingsAt("chunk_index", numeric)
	doc.AddFieldMappingsAt("text", text)

	mapping := bleve.NewIndexMapping()
	mapping.DefaultMapping = doc
	return mapping
}

// IndexChunks adds or replaces entries in one batch.
func (i *Index) IndexChunks(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := i.idx.NewBatch()
	for _, e := range entries {
		fields := map[string]interface{}{
			"tenant_id":   e.TenantID,
			"agent_id":    e.AgentID,
			"document_id": e.DocumentID,
			"chunk_index": e.ChunkIndex,
			"text":        e.Text,
		}
		if err := batch.Index(e.ID, fields); err != nil {
			return fmt.Errorf("failed to batch entry %s: %w", e.ID, err)
		}
	}
	return i.idx.Batch(batch)
}

// Search runs a keyword query scoped to one tenant and agent. Both are
// mandatory; there is no cross-tenant keyword search.
func (i *Index) Search(ctx context.Context, tenantID, agentID, text string, limit int) ([]Match, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if agentID == "" {
		return nil, domain.ErrMissingAgent
	}
	if limit <= 0 {
		limit = 10
	}

	match := query.NewMatchQuery(text)
	match.SetField("text")

	conj := query.NewConjunctionQuery([]query.Query{
		termQuery("tenant_id", tenantID),
		termQuery("agent_id", agentID),
		match,
	})

	req := bleve.NewSearchRequestOptions(conj, limit, 0, false)
	req.Fields = []string{"document_id", "chunk_index", "text"}

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		m := Match{ID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["document_id"].(string); ok {
			m.DocumentID = v
		}
		if v, ok := hit.Fields["chunk_index"].(float64); ok {
			m.ChunkIndex = int(v)
		}
		if v, ok := hit.Fields["text"].(string); ok {
			m.Text = v
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// DeleteDocument removes every entry belonging to a document.
func (i *Index) DeleteDocument(ctx context.Context, documentID string) error {
	for {
		req := bleve.NewSearchRequestOptions(termQuery("document_id", documentID), deleteScanBatch, 0, false)
		res, err := i.idx.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to find document entries: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		batch := i.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := i.idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete document entries: %w", err)
		}
	}
}

// Close releases the underlying index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func termQuery(field, value string) *query.TermQuery {
	tq := query.NewTermQuery(value)
	tq.SetField(field)
	return tq
}
