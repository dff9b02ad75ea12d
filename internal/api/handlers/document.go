package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parchment-ai/corpusd/internal/api"
	"github.com/parchment-ai/corpusd/internal/api/middleware"
	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/service"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

type DocumentService interface {
	Get(ctx context.Context, tenantID, agentID, id string) (*domain.Document, error)
	List(ctx context.Context, tenantID, agentID string, limit, offset int) ([]*domain.Document, int, error)
	GetChunks(ctx context.Context, tenantID, agentID, id string) ([]vectorstore.Match, error)
	Stats(ctx context.Context, tenantID, agentID string) (map[domain.DocumentStatus]int, error)
	Delete(ctx context.Context, tenantID, agentID, id string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentResponse struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	Kind        string            `json:"kind"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ContentSize int64             `json:"content_size"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:          d.ID,
		Filename:    d.Filename,
		Kind:        string(d.Kind),
		Status:      string(d.Status),
		Error:       d.Error,
		Metadata:    d.Metadata,
		ContentSize: d.ContentSize,
		CreatedAt:   d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Get(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetAgentID(r.Context()), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

type DocumentListResponse struct {
	Items []*DocumentResponse `json:"items"`
	Total int                 `json:"total"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	docs, total, err := h.svc.List(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetAgentID(r.Context()), limit, offset)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*DocumentResponse, len(docs))
	for i, d := range docs {
		items[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{Items: items, Total: total})
}

type ChunkResponse struct {
	ID         string `json:"id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

func (h *DocumentHandler) GetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chunks, err := h.svc.GetChunks(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetAgentID(r.Context()), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ChunkResponse, len(chunks))
	for i, c := range chunks {
		chunkIndex, _ := strconv.Atoi(c.Metadata["chunk_index"])
		items[i] = &ChunkResponse{ID: c.ID, ChunkIndex: chunkIndex, Text: c.Text}
	}

	api.Success(w, http.StatusOK, items)
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetAgentID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	api.Success(w, http.StatusOK, counts)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetAgentID(r.Context()), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}

// ReconcileService triggers a reconciliation sweep scoped to one tenant and
// agent.
type ReconcileService interface {
	Reconcile(ctx context.Context, input service.ReconcileInput) (*service.ReconcileSummary, error)
}

type ReconcileHandler struct {
	svc ReconcileService
}

func NewReconcileHandler(svc ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{svc: svc}
}

type ReconcileResponse struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Reconcile(r.Context(), service.ReconcileInput{
		TenantID: middleware.GetTenantID(r.Context()),
		AgentID:  middleware.GetAgentID(r.Context()),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ReconcileResponse{
		Synced:  summary.Synced,
		Skipped: summary.Skipped,
		Failed:  summary.Failed,
	})
}
