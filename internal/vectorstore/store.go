// Package vectorstore persists chunk embeddings in qdrant, one collection
// per (tenant, agent) pair.
package vectorstore

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/parchment-ai/corpusd/internal/domain"
)

const (
	// DefaultCollectionPrefix namespaces this service's collections so a
	// shared qdrant instance can host other workloads.
	DefaultCollectionPrefix = "kb"

	// previewRunes is the length of the truncated text preview stored in
	// chunk payloads.
	previewRunes = 200
)

var collectionSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// pointsClient is the subset of the qdrant client used by the store.
type pointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	ListCollections(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
}

// Config holds vector store configuration.
type Config struct {
	Dimensions       int
	DedupThreshold   float64
	CollectionPrefix string
}

// Store provides tenant-isolated persistence and similarity search over
// chunk embeddings. Collections are created lazily on first write with
// cosine distance fixed at creation.
type Store struct {
	client pointsClient
	cfg    Config
}

// NewStore creates a Store over an established qdrant client.
func NewStore(client *qdrant.Client, cfg Config) *Store {
	return newStore(client, cfg)
}

func newStore(client pointsClient, cfg Config) *Store {
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = DefaultDedupThreshold
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = DefaultCollectionPrefix
	}
	return &Store{client: client, cfg: cfg}
}

// CollectionName derives the deterministic collection name for a
// (tenant, agent) pair.
func (s *Store) CollectionName(tenantID, agentID string) string {
	return fmt.Sprintf("%s_%s_%s", s.cfg.CollectionPrefix, sanitize(tenantID), sanitize(agentID))
}

func sanitize(id string) string {
	return collectionSanitizer.ReplaceAllString(id, "-")
}

// StoreInput describes one write batch: a document's chunks, their vectors,
// and shared metadata copied onto every stored point.
type StoreInput struct {
	TenantID   string
	AgentID    string
	DocumentID string
	Chunks     []domain.Chunk
	Vectors    [][]float32
	Metadata   map[string]string
}

// StoreResult reports how a write batch was applied.
type StoreResult struct {
	Stored  int
	Deduped int
}

// StoreEmbeddings writes a document's chunk vectors into the owning
// collection. Chunks whose vectors are near-duplicates (cosine similarity at
// or above the configured threshold) of a chunk already accepted in this
// batch are dropped before insert. A batch where nothing survives is a
// documented no-op, not an error.
func (s *Store) StoreEmbeddings(ctx context.Context, in StoreInput) (*StoreResult, error) {
	if in.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if in.AgentID == "" {
		return nil, domain.ErrMissingAgent
	}
	if len(in.Chunks) != len(in.Vectors) {
		return nil, fmt.Errorf("mismatch: got %d chunks but %d vectors", len(in.Chunks), len(in.Vectors))
	}
	if len(in.Chunks) == 0 {
		return &StoreResult{}, nil
	}

	keep := DedupBatch(in.Vectors, s.cfg.DedupThreshold)
	result := &StoreResult{
		Stored:  len(keep),
		Deduped: len(in.Chunks) - len(keep),
	}
	if result.Deduped > 0 {
		kept := make(map[int]bool, len(keep))
		for _, i := range keep {
			kept[i] = true
		}
		for i, chunk := range in.Chunks {
			if !kept[i] {
				log.Printf("vectorstore: dropped near-duplicate chunk %d of document %s (text hash %s)",
					chunk.Index, in.DocumentID, chunk.Hash())
			}
		}
	}
	if len(keep) == 0 {
		log.Printf("vectorstore: all %d chunks of document %s deduplicated, skipping write", len(in.Chunks), in.DocumentID)
		return result, nil
	}

	collection := s.CollectionName(in.TenantID, in.AgentID)
	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	points := make([]*qdrant.PointStruct, 0, len(keep))
	for _, i := range keep {
		chunk := in.Chunks[i]

		payload := map[string]any{
			"document_id": in.DocumentID,
			"chunk_index": int64(chunk.Index),
			"chunk_total": int64(chunk.Total),
			"text":        chunk.Text,
			"preview":     chunk.Preview(previewRunes),
			"tenant_id":   in.TenantID,
			"agent_id":    in.AgentID,
		}
		for k, v := range in.Metadata {
			payload["meta_"+k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(in.Vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	}); err != nil {
		return nil, fmt.Errorf("qdrant upsert failed: %w", err)
	}

	return result, nil
}

// SearchQuery describes a similarity search. TenantID and AgentID are
// mandatory; searching without them is a contract violation.
type SearchQuery struct {
	TenantID string
	AgentID  string
	Vector   []float32
	Limit    int
}

// Match is one search or retrieval result.
type Match struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64
	Distance float64
}

// Search returns the closest stored chunks for a query vector, scoped to one
// (tenant, agent) collection. A missing tenant or agent fails fast to prevent
// cross-tenant leakage.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]Match, error) {
	if q.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if q.AgentID == "" {
		return nil, domain.ErrMissingAgent
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	collection := s.CollectionName(q.TenantID, q.AgentID)
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if !exists {
		return []Match{}, nil
	}

	// The collection is already tenant-scoped; the filter is defense in depth
	// against misrouted writes.
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         tenantFilter(q.TenantID, q.AgentID),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		m := matchFromPayload(hit.GetId().GetUuid(), hit.GetPayload())
		m.Score = float64(hit.GetScore())
		m.Distance = 1 - m.Score
		matches = append(matches, m)
	}
	return matches, nil
}

// GetDocumentChunks returns every stored chunk of a document within the
// owning collection, ordered by chunk index.
func (s *Store) GetDocumentChunks(ctx context.Context, tenantID, agentID, documentID string) ([]Match, error) {
	if tenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if agentID == "" {
		return nil, domain.ErrMissingAgent
	}

	collection := s.CollectionName(tenantID, agentID)
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if !exists {
		return []Match{}, nil
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         documentFilter(documentID),
		Limit:          qdrant.PtrOf(uint32(1000)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll failed: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, matchFromPayload(p.GetId().GetUuid(), p.GetPayload()))
	}
	sortByChunkIndex(matches)
	return matches, nil
}

// CountDocumentChunks reports how many chunks a document has in its owning
// collection. A missing collection counts as zero.
func (s *Store) CountDocumentChunks(ctx context.Context, tenantID, agentID, documentID string) (int, error) {
	collection := s.CollectionName(tenantID, agentID)
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         documentFilter(documentID),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return int(count), nil
}

// HasDocument reports whether any chunks of the document are stored. This is
// the reconciliation coverage check.
func (s *Store) HasDocument(ctx context.Context, tenantID, agentID, documentID string) (bool, error) {
	count, err := s.CountDocumentChunks(ctx, tenantID, agentID, documentID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteDocument removes all chunks of a document from its owning collection.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, agentID, documentID string) error {
	if tenantID == "" {
		return domain.ErrMissingTenant
	}
	if agentID == "" {
		return domain.ErrMissingAgent
	}

	collection := s.CollectionName(tenantID, agentID)
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if !exists {
		return nil
	}
	return s.deleteFromCollection(ctx, collection, documentID)
}

// DeleteDocumentAnywhere removes a document's chunks from every collection
// owned by this service. Used when the caller knows only the document id;
// the full scan is an acceptable O(collections) cost at expected partition
// counts.
func (s *Store) DeleteDocumentAnywhere(ctx context.Context, documentID string) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant list collections failed: %w", err)
	}

	prefix := s.cfg.CollectionPrefix + "_"
	for _, collection := range collections {
		if !strings.HasPrefix(collection, prefix) {
			continue
		}
		if err := s.deleteFromCollection(ctx, collection, documentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteFromCollection(ctx context.Context, collection, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func (s *Store) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.cfg.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection failed: %w", err)
	}
	return nil
}

func tenantFilter(tenantID, agentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("tenant_id", tenantID),
			qdrant.NewMatch("agent_id", agentID),
		},
	}
}

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("document_id", documentID),
		},
	}
}

func matchFromPayload(id string, payload map[string]*qdrant.Value) Match {
	m := Match{
		ID:       id,
		Metadata: make(map[string]string, len(payload)),
	}
	for k, v := range payload {
		switch k {
		case "text":
			m.Text = v.GetStringValue()
		case "chunk_index", "chunk_total":
			m.Metadata[k] = fmt.Sprintf("%d", v.GetIntegerValue())
		default:
			m.Metadata[k] = v.GetStringValue()
		}
	}
	return m
}

func sortByChunkIndex(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		a, _ := strconv.Atoi(matches[i].Metadata["chunk_index"])
		b, _ := strconv.Atoi(matches[j].Metadata["chunk_index"])
		return a < b
	})
}
