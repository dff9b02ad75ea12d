//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"

	"github.com/parchment-ai/corpusd/internal/api/handlers"
	"github.com/parchment-ai/corpusd/internal/chunker"
	"github.com/parchment-ai/corpusd/internal/classifier"
	"github.com/parchment-ai/corpusd/internal/extractor"
	"github.com/parchment-ai/corpusd/internal/lexical"
	"github.com/parchment-ai/corpusd/internal/repository"
	"github.com/parchment-ai/corpusd/internal/server"
	"github.com/parchment-ai/corpusd/internal/service"
	"github.com/parchment-ai/corpusd/internal/storage"
	"github.com/parchment-ai/corpusd/internal/testutil"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

// embedDims is the vector width of the deterministic test embedder.
const embedDims = 64

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	QdrantC    *testutil.QdrantContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Qdrant     *qdrant.Client
	Keyword    *lexical.Index
	S3Client   *storage.S3Client
	ServerURL  string
	HTTPClient *http.Client

	httpServer *httptest.Server
}

// SetupE2EEnv creates a full E2E test environment with containers and server.
// Embeddings come from a deterministic local embedder, so no external API key
// is needed.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	qdC := testutil.NewQdrantContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	grpcPort, err := strconv.Atoi(qdC.GRPCPort)
	if err != nil {
		t.Fatalf("invalid qdrant port %q: %v", qdC.GRPCPort, err)
	}
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: qdC.Host,
		Port: grpcPort,
	})
	if err != nil {
		t.Fatalf("failed to connect to qdrant: %v", err)
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-content",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	keywordIndex, err := lexical.NewIndex("")
	if err != nil {
		t.Fatalf("failed to create keyword index: %v", err)
	}

	httpServer := startServer(pool, qdrantClient, s3Client, keywordIndex)

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		QdrantC:    qdC,
		RustFSC:    s3C,
		Pool:       pool,
		Qdrant:     qdrantClient,
		Keyword:    keywordIndex,
		S3Client:   s3Client,
		ServerURL:  httpServer.URL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		httpServer: httpServer,
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.httpServer != nil {
		e.httpServer.Close()
	}
	if e.Keyword != nil {
		e.Keyword.Close()
	}
	if e.Qdrant != nil {
		e.Qdrant.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.QdrantC != nil {
		e.QdrantC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// startServer wires the full service stack behind an httptest server.
func startServer(pool *pgxpool.Pool, qdrantClient *qdrant.Client, s3Client *storage.S3Client, keywordIndex *lexical.Index) *httptest.Server {
	ledger := repository.NewDocumentRepository(pool)
	embedder := &hashEmbedder{}
	store := vectorstore.NewStore(qdrantClient, vectorstore.Config{
		Dimensions: embedDims,
	})

	registry := extractor.NewRegistry(
		extractor.NewOCRStrategy(extractor.NewGosseractEngine("eng")),
		extractor.NewPlainWebStrategy(),
		extractor.NewDirectStrategy(),
	)

	ingestionSvc := service.NewIngestionService(ledger, classifier.Classify, registry, embedder, store,
		service.IngestionOptions{
			ContentStore: s3Client,
			KeywordIndex: keywordIndex,
			ChunkConfig:  chunker.Config{Size: 200, Overlap: 40},
		})
	searchSvc := service.NewSearchService(embedder, store, keywordIndex)
	documentSvc := service.NewDocumentService(ledger, store, keywordIndex, s3Client)
	reconcileSvc := service.NewReconcileService(ledger, store, ingestionSvc, classifier.Classify, s3Client)

	router := server.NewRouter(server.RouterConfig{
		IngestHandler:    handlers.NewIngestHandler(ingestionSvc),
		DocumentHandler:  handlers.NewDocumentHandler(documentSvc),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
		ReconcileHandler: handlers.NewReconcileHandler(reconcileSvc),
	})

	return httptest.NewServer(router)
}

// hashEmbedder derives a unit vector from the SHA-256 of the text. Identical
// texts map to identical vectors and distinct texts are effectively
// orthogonal, which preserves the store's dedup and isolation semantics
// without a real embedding backend.
type hashEmbedder struct{}

func (h *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func hashVector(text string) []float32 {
	vec := make([]float32, embedDims)
	seed := sha256.Sum256([]byte(text))
	var norm float64
	for i := 0; i < embedDims; i += 8 {
		block := sha256.Sum256(append(seed[:], byte(i)))
		for j := 0; j < 8; j++ {
			raw := binary.BigEndian.Uint32(block[j*4 : j*4+4])
			v := float64(raw)/float64(math.MaxUint32)*2 - 1
			vec[i+j] = float32(v)
			norm += v * v
		}
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request scoped to the given tenant and agent
func (e *E2ETestEnv) Get(path, tenantID, agentID string) (*APIResponse, int, error) {
	return e.doRequest("GET", path, nil, tenantID, agentID)
}

// Post performs a POST request scoped to the given tenant and agent
func (e *E2ETestEnv) Post(path string, body interface{}, tenantID, agentID string) (*APIResponse, int, error) {
	return e.doRequest("POST", path, body, tenantID, agentID)
}

// Delete performs a DELETE request scoped to the given tenant and agent
func (e *E2ETestEnv) Delete(path, tenantID, agentID string) (*APIResponse, int, error) {
	return e.doRequest("DELETE", path, nil, tenantID, agentID)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, tenantID, agentID string) (*APIResponse, int, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	if agentID != "" {
		req.Header.Set("X-Agent-ID", agentID)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if len(respBody) == 0 {
		return &APIResponse{}, resp.StatusCode, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return &apiResp, resp.StatusCode, nil
}

// PostMultipart uploads a file through the multipart ingest path
func (e *E2ETestEnv) PostMultipart(path, filename string, content []byte, metadata map[string]string, tenantID, agentID string) (*APIResponse, int, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, 0, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, 0, err
	}
	if metadata != nil {
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, 0, err
		}
		if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
			return nil, 0, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequest("POST", e.ServerURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("X-Agent-ID", agentID)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return &apiResp, resp.StatusCode, nil
}

// documentPayload mirrors the document response body. ChunkCount and
// ProcessingTimeMS are only present on ingest responses.
type documentPayload struct {
	ID               string            `json:"id"`
	Filename         string            `json:"filename"`
	Kind             string            `json:"kind"`
	Status           string            `json:"status"`
	Error            string            `json:"error,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ContentSize      int64             `json:"content_size"`
	ChunkCount       int               `json:"chunk_count"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
}

// IngestText ingests a plain text document and returns the resulting document
func (e *E2ETestEnv) IngestText(tenantID, agentID, filename, text string, metadata map[string]string) *documentPayload {
	resp, status, err := e.Post("/v1/documents", map[string]interface{}{
		"filename": filename,
		"text":     text,
		"metadata": metadata,
	}, tenantID, agentID)
	if err != nil {
		e.T.Fatalf("ingest request failed: %v", err)
	}
	if status != http.StatusCreated {
		e.T.Fatalf("ingest returned HTTP %d: %s", status, resp.Error)
	}

	var doc documentPayload
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		e.T.Fatalf("failed to parse document response: %v", err)
	}
	return &doc
}
