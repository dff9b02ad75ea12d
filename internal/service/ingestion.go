package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/parchment-ai/corpusd/internal/chunker"
	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/extractor"
	"github.com/parchment-ai/corpusd/internal/lexical"
	"github.com/parchment-ai/corpusd/internal/metrics"
	"github.com/parchment-ai/corpusd/internal/storage"
	"github.com/parchment-ai/corpusd/internal/telemetry"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

// DocumentLedger defines the repository interface for the document ledger.
type DocumentLedger interface {
	Create(ctx context.Context, d *domain.Document, content []byte, contentKey string) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetContent(ctx context.Context, id string) ([]byte, string, error)
	List(ctx context.Context, tenantID, agentID string, limit, offset int) ([]*domain.Document, int, error)
	ListForReconcile(ctx context.Context, tenantID, agentID string) ([]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	UpdateKind(ctx context.Context, id string, kind domain.ContentKind) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, tenantID, agentID string) (map[domain.DocumentStatus]int, error)
}

// VectorStore defines the vector persistence interface used by the pipeline.
type VectorStore interface {
	StoreEmbeddings(ctx context.Context, in vectorstore.StoreInput) (*vectorstore.StoreResult, error)
	Search(ctx context.Context, q vectorstore.SearchQuery) ([]vectorstore.Match, error)
	GetDocumentChunks(ctx context.Context, tenantID, agentID, documentID string) ([]vectorstore.Match, error)
	CountDocumentChunks(ctx context.Context, tenantID, agentID, documentID string) (int, error)
	HasDocument(ctx context.Context, tenantID, agentID, documentID string) (bool, error)
	DeleteDocument(ctx context.Context, tenantID, agentID, documentID string) error
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Extractor resolves raw content into plain text by content kind.
type Extractor interface {
	Extract(ctx context.Context, kind domain.ContentKind, raw []byte, filename string) (*extractor.Result, error)
}

// ContentStore offloads raw document content to object storage.
type ContentStore interface {
	PutContent(ctx context.Context, key string, content []byte, contentType string) error
	GetContent(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// KeywordIndex maintains the lexical index alongside the vector store.
type KeywordIndex interface {
	IndexChunks(entries []lexical.Entry) error
	Search(ctx context.Context, tenantID, agentID, text string, limit int) ([]lexical.Match, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// ClassifyFunc determines the content kind of raw bytes.
type ClassifyFunc func(raw []byte, filename string) domain.ContentKind

// IngestionOptions carries the optional collaborators of the pipeline.
type IngestionOptions struct {
	ContentStore ContentStore
	KeywordIndex KeywordIndex
	ChunkConfig  chunker.Config
	UUIDGen      UUIDGenerator
}

// IngestionService runs the full pipeline: classify, extract, chunk, embed,
// store, and record the outcome in the ledger.
type IngestionService struct {
	ledger    DocumentLedger
	classify  ClassifyFunc
	extractor Extractor
	embedder  Embedder
	store     VectorStore
	content   ContentStore
	keyword   KeywordIndex
	chunkCfg  chunker.Config
	uuidGen   UUIDGenerator
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(
	ledger DocumentLedger,
	classify ClassifyFunc,
	ex Extractor,
	embedder Embedder,
	store VectorStore,
	opts IngestionOptions,
) *IngestionService {
	chunkCfg := opts.ChunkConfig
	if chunkCfg.Size <= 0 {
		chunkCfg = chunker.DefaultConfig()
	}
	uuidGen := opts.UUIDGen
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &IngestionService{
		ledger:    ledger,
		classify:  classify,
		extractor: ex,
		embedder:  embedder,
		store:     store,
		content:   opts.ContentStore,
		keyword:   opts.KeywordIndex,
		chunkCfg:  chunkCfg,
		uuidGen:   uuidGen,
	}
}

// IngestInput represents one document submitted for ingestion.
type IngestInput struct {
	TenantID string
	AgentID  string
	Filename string
	Content  []byte
	Metadata map[string]string
}

// IngestResult is the outcome of one ingestion call.
type IngestResult struct {
	Document       *domain.Document
	ChunkCount     int
	ProcessingTime time.Duration
}

// Ingest records the document in the ledger, runs the pipeline, and returns
// the ledger row with its final status. Pipeline failures are recorded on the
// document rather than returned: the ledger is the source of truth for
// processing outcomes, and only validation or ledger errors fail the call.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		AgentID:   input.AgentID,
		Operation: "ingest",
	})
	defer span.End()

	if input.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if input.AgentID == "" {
		return nil, domain.ErrMissingAgent
	}

	start := time.Now()
	kind := s.classify(input.Content, input.Filename)
	now := start.UTC()
	doc := domain.NewDocument(s.uuidGen.NewString(), input.TenantID, input.AgentID,
		input.Filename, kind, input.Metadata, int64(len(input.Content)), now)

	contentKey := ""
	stored := input.Content
	if s.content != nil {
		contentKey = storage.ContentKey(doc.ID)
		if err := s.content.PutContent(ctx, contentKey, input.Content, ""); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeLedger,
				"failed to store raw content", err)
		}
		stored = nil
	}

	if err := s.ledger.Create(ctx, doc, stored, contentKey); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeLedger,
			"failed to record document", err)
	}

	chunkCount, err := s.ProcessDocument(ctx, doc, input.Content)
	if err != nil {
		s.failDocument(ctx, doc, err)
		return &IngestResult{Document: doc, ProcessingTime: time.Since(start)}, nil
	}

	s.completeDocument(ctx, doc)
	return &IngestResult{
		Document:       doc,
		ChunkCount:     chunkCount,
		ProcessingTime: time.Since(start),
	}, nil
}

// ProcessDocument runs extraction through vector storage for a document whose
// ledger row already exists, returning the number of chunks produced. The
// caller owns the surrounding status writes.
func (s *IngestionService) ProcessDocument(ctx context.Context, doc *domain.Document, content []byte) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.ProcessDocument", telemetry.SpanAttributes{
		TenantID:   doc.TenantID,
		AgentID:    doc.AgentID,
		DocumentID: doc.ID,
		Operation:  "process",
	})
	defer span.End()

	if len(content) == 0 {
		return 0, domain.ErrNoExtractableText
	}

	extractStart := time.Now()
	result, err := s.extractor.Extract(ctx, doc.Kind, content, doc.Filename)
	metrics.PipelineDuration.WithLabelValues("extract").Observe(time.Since(extractStart).Seconds())
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(result.Text) == "" {
		// Defined empty outcomes (robots-disallowed fetches) land here too:
		// a document with no text cannot complete.
		return 0, domain.ErrNoExtractableText
	}

	pieces := chunker.Split(result.Text, s.chunkCfg)
	if len(pieces) == 0 {
		return 0, domain.ErrChunkingDegenerate
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.Chunk{
			DocumentID: doc.ID,
			Index:      i,
			Total:      len(pieces),
			Text:       piece,
		}
	}

	embedStart := time.Now()
	vectors, err := s.embedder.EmbedBatch(ctx, pieces)
	metrics.PipelineDuration.WithLabelValues("embed").Observe(time.Since(embedStart).Seconds())
	if err != nil {
		return 0, domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding,
			"embedding generation failed", err)
	}

	metadata := make(map[string]string, len(doc.Metadata)+len(result.Metadata))
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	for k, v := range result.Metadata {
		metadata[k] = v
	}

	storeResult, err := s.store.StoreEmbeddings(ctx, vectorstore.StoreInput{
		TenantID:   doc.TenantID,
		AgentID:    doc.AgentID,
		DocumentID: doc.ID,
		Chunks:     chunks,
		Vectors:    vectors,
		Metadata:   metadata,
	})
	if err != nil {
		return 0, domain.NewDomainErrorWithCause(domain.ErrCodeStore,
			"vector store write failed", err)
	}
	metrics.ChunksStored.Add(float64(storeResult.Stored))
	metrics.ChunksDeduplicated.Add(float64(storeResult.Deduped))

	if s.keyword != nil {
		// Keyword indexing is best effort; vector coverage is what completion
		// guarantees.
		if err := s.keyword.IndexChunks(keywordEntries(doc, chunks)); err != nil {
			log.Printf("ingestion: keyword indexing failed for document %s: %v", doc.ID, err)
		}
	}
	return len(pieces), nil
}

func keywordEntries(doc *domain.Document, chunks []domain.Chunk) []lexical.Entry {
	entries := make([]lexical.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = lexical.Entry{
			ID:         fmt.Sprintf("%s-%d", doc.ID, chunk.Index),
			TenantID:   doc.TenantID,
			AgentID:    doc.AgentID,
			DocumentID: doc.ID,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
		}
	}
	return entries
}

func (s *IngestionService) failDocument(ctx context.Context, doc *domain.Document, cause error) {
	telemetry.CaptureError(ctx, cause)
	log.Printf("ingestion: document %s failed: %v", doc.ID, cause)

	if err := s.ledger.UpdateStatus(ctx, doc.ID, domain.DocumentStatusFailed, cause.Error()); err != nil {
		log.Printf("ingestion: failed to record failure for document %s: %v", doc.ID, err)
		return
	}
	doc.Status = domain.DocumentStatusFailed
	doc.Error = cause.Error()
	metrics.DocumentsIngested.WithLabelValues(string(doc.Kind), string(domain.DocumentStatusFailed)).Inc()
}

func (s *IngestionService) completeDocument(ctx context.Context, doc *domain.Document) {
	if err := s.ledger.UpdateStatus(ctx, doc.ID, domain.DocumentStatusCompleted, ""); err != nil {
		// Vectors are stored; a reconciliation sweep will settle the status.
		telemetry.CaptureError(ctx, err)
		log.Printf("ingestion: failed to mark document %s completed: %v", doc.ID, err)
		return
	}
	doc.Status = domain.DocumentStatusCompleted
	doc.Error = ""
	metrics.DocumentsIngested.WithLabelValues(string(doc.Kind), string(domain.DocumentStatusCompleted)).Inc()
}
