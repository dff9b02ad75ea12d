package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/parchment-ai/corpusd/internal/api"
	"github.com/parchment-ai/corpusd/internal/api/middleware"
	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/service"
)

// maxMultipartMemory bounds how much of an upload is buffered in memory
// before spilling to disk.
const maxMultipartMemory = 10 << 20

type IngestionService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
}

type IngestHandler struct {
	svc IngestionService
}

func NewIngestHandler(svc IngestionService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// IngestJSONRequest is the JSON form of an ingest request. Content carries
// the raw bytes base64-encoded; Text is a convenience for plain text.
type IngestJSONRequest struct {
	Filename string            `json:"filename"`
	Content  string            `json:"content,omitempty"`
	Text     string            `json:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestResponse is the document plus per-request processing facts.
type IngestResponse struct {
	*DocumentResponse
	ChunkCount       int   `json:"chunk_count"`
	ProcessingTimeMS int64 `json:"processing_time_ms"`
}

// Ingest accepts a document as either a multipart upload (field "file", with
// an optional "metadata" JSON field) or a JSON body. Processing runs inline;
// the response carries the document's final status.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	agentID := middleware.GetAgentID(r.Context())

	var input service.IngestInput
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		input, err = parseMultipartIngest(r)
	} else {
		input, err = parseJSONIngest(r)
	}
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	input.TenantID = tenantID
	input.AgentID = agentID

	result, err := h.svc.Ingest(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, IngestResponse{
		DocumentResponse: documentToResponse(result.Document),
		ChunkCount:       result.ChunkCount,
		ProcessingTimeMS: result.ProcessingTime.Milliseconds(),
	})
}

func parseMultipartIngest(r *http.Request) (service.IngestInput, error) {
	var input service.IngestInput
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return input, domain.NewDomainError(domain.ErrCodeValidation, "invalid multipart request")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return input, domain.NewDomainError(domain.ErrCodeValidation, "file field is required")
	}
	defer func(file multipart.File) { _ = file.Close() }(file)

	content, err := io.ReadAll(file)
	if err != nil {
		return input, domain.NewDomainError(domain.ErrCodeValidation, "failed to read file")
	}

	input.Filename = header.Filename
	input.Content = content

	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.Metadata); err != nil {
			return input, domain.NewDomainError(domain.ErrCodeValidation, "metadata must be a JSON object of strings")
		}
	}
	return input, nil
}

func parseJSONIngest(r *http.Request) (service.IngestInput, error) {
	var input service.IngestInput
	var req IngestJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return input, domain.NewDomainError(domain.ErrCodeValidation, "invalid request body")
	}

	switch {
	case req.Content != "":
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return input, domain.NewDomainError(domain.ErrCodeValidation, "content must be base64 encoded")
		}
		input.Content = content
	case req.Text != "":
		input.Content = []byte(req.Text)
	default:
		return input, domain.NewDomainError(domain.ErrCodeValidation, "content or text is required")
	}

	input.Filename = req.Filename
	input.Metadata = req.Metadata
	return input, nil
}
