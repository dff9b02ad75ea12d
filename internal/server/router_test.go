package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parchment-ai/corpusd/internal/api/handlers"
	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/service"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Get(ctx context.Context, tenantID, agentID, id string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, agentID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, tenantID, agentID string, limit, offset int) ([]*domain.Document, int, error) {
	args := m.Called(ctx, tenantID, agentID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Document), args.Int(1), args.Error(2)
}

func (m *MockDocumentService) GetChunks(ctx context.Context, tenantID, agentID, id string) ([]vectorstore.Match, error) {
	args := m.Called(ctx, tenantID, agentID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.Match), args.Error(1)
}

func (m *MockDocumentService) Stats(ctx context.Context, tenantID, agentID string) (map[domain.DocumentStatus]int, error) {
	args := m.Called(ctx, tenantID, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.DocumentStatus]int), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, tenantID, agentID, id string) error {
	args := m.Called(ctx, tenantID, agentID, id)
	return args.Error(0)
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, input service.SearchInput) ([]service.SearchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SearchResult), args.Error(1)
}

type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) Reconcile(ctx context.Context, input service.ReconcileInput) (*service.ReconcileSummary, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconcileSummary), args.Error(1)
}

func setupRouter() (http.Handler, *MockIngestionService, *MockDocumentService, *MockSearchService, *MockReconcileService) {
	ingestSvc := new(MockIngestionService)
	documentSvc := new(MockDocumentService)
	searchSvc := new(MockSearchService)
	reconcileSvc := new(MockReconcileService)

	cfg := RouterConfig{
		IngestHandler:    handlers.NewIngestHandler(ingestSvc),
		DocumentHandler:  handlers.NewDocumentHandler(documentSvc),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
		ReconcileHandler: handlers.NewReconcileHandler(reconcileSvc),
	}

	router := NewRouter(cfg)
	return router, ingestSvc, documentSvc, searchSvc, reconcileSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ScopedRoutes_RequireTenantHeaders(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/documents"},
		{http.MethodGet, "/v1/documents"},
		{http.MethodGet, "/v1/documents/123"},
		{http.MethodGet, "/v1/documents/123/chunks"},
		{http.MethodGet, "/v1/documents/stats"},
		{http.MethodDelete, "/v1/documents/123"},
		{http.MethodPost, "/v1/search"},
		{http.MethodPost, "/v1/reconcile"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "X-Tenant-ID")
		})
	}
}

func TestRouter_SearchWithTenantHeaders(t *testing.T) {
	router, _, _, searchSvc, _ := setupRouter()

	searchSvc.On("Search", mock.Anything, mock.MatchedBy(func(input service.SearchInput) bool {
		return input.TenantID == "tenant-1" && input.AgentID == "agent-1" && input.Query == "refunds"
	})).Return([]service.SearchResult{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"refunds"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-1")
	req.Header.Set("X-Agent-ID", "agent-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	searchSvc.AssertExpectations(t)
}

func TestRouter_RequestIDHeaderSet(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_BodyTooLarge(t *testing.T) {
	router, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader("{}"))
	req.Header.Set("X-Tenant-ID", "tenant-1")
	req.Header.Set("X-Agent-ID", "agent-1")
	req.ContentLength = defaultMaxBodyBytes + 1
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
