package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/parchment-ai/corpusd/internal/api"
	"github.com/parchment-ai/corpusd/internal/api/middleware"
	"github.com/parchment-ai/corpusd/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) ([]service.SearchResult, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query       string  `json:"query"`
	Limit       int     `json:"limit,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	MaxDistance float64 `json:"max_distance,omitempty"`
}

type SearchResultResponse struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Distance   float64           `json:"distance,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.svc.Search(r.Context(), service.SearchInput{
		TenantID:    middleware.GetTenantID(r.Context()),
		AgentID:     middleware.GetAgentID(r.Context()),
		Query:       req.Query,
		Limit:       req.Limit,
		Mode:        service.SearchMode(req.Mode),
		MaxDistance: req.MaxDistance,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*SearchResultResponse, len(results))
	for i, res := range results {
		items[i] = &SearchResultResponse{
			ID:         res.ID,
			DocumentID: res.DocumentID,
			ChunkIndex: res.ChunkIndex,
			Text:       res.Text,
			Score:      res.Score,
			Distance:   res.Distance,
			Metadata:   res.Metadata,
		}
	}

	api.Success(w, http.StatusOK, items)
}
