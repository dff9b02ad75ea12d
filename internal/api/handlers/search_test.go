package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/service"
)

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

func TestSearchHandler_Success(t *testing.T) {
	mockSvc := new(MockSearchService)
	handler := NewSearchHandler(mockSvc)

	results := []service.SearchResult{
		{ID: "v1", DocumentID: "doc-1", ChunkIndex: 0, Text: "refund policy", Score: 0.92, Distance: 0.08},
	}
	mockSvc.On("Search", mock.Anything, mock.MatchedBy(func(input service.SearchInput) bool {
		return input.TenantID == "tenant-1" &&
			input.AgentID == "agent-1" &&
			input.Query == "refunds" &&
			input.Mode == service.SearchModeHybrid &&
			input.Limit == 5
	})).Return(results, nil)

	body := `{"query":"refunds","limit":5,"mode":"hybrid"}`
	req := requestWithTenant(http.MethodPost, "/v1/search", []byte(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []SearchResultResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "doc-1", resp.Data[0].DocumentID)
	assert.Equal(t, "refund policy", resp.Data[0].Text)
	mockSvc.AssertExpectations(t)
}

func TestSearchHandler_InvalidBody(t *testing.T) {
	mockSvc := new(MockSearchService)
	handler := NewSearchHandler(mockSvc)

	req := requestWithTenant(http.MethodPost, "/v1/search", []byte("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	mockSvc := new(MockSearchService)
	handler := NewSearchHandler(mockSvc)

	mockSvc.On("Search", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrCodeValidation, "search query is required"))

	body := `{"query":""}`
	req := requestWithTenant(http.MethodPost, "/v1/search", []byte(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "search query is required")
}

func TestSearchHandler_EmptyResults(t *testing.T) {
	mockSvc := new(MockSearchService)
	handler := NewSearchHandler(mockSvc)

	mockSvc.On("Search", mock.Anything, mock.Anything).
		Return([]service.SearchResult{}, nil)

	body := `{"query":"nothing matches this"}`
	req := requestWithTenant(http.MethodPost, "/v1/search", []byte(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []SearchResultResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}
