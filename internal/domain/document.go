package domain

import (
	"fmt"
	"time"
)

// ContentKind represents the detected type of a document's raw content
type ContentKind string

const (
	ContentKindImage    ContentKind = "image"
	ContentKindPDF      ContentKind = "pdf"
	ContentKindText     ContentKind = "text"
	ContentKindDocument ContentKind = "document"
	ContentKindURL      ContentKind = "url"
	ContentKindUnknown  ContentKind = "unknown"
)

// DocumentStatus represents the processing status of a document
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents an ingested document owned by the ledger.
// Raw content is stored separately, addressable by the document ID,
// and is immutable once written.
type Document struct {
	ID       string
	TenantID string
	AgentID  string
	Filename string
	Kind     ContentKind
	Metadata map[string]string
	Status   DocumentStatus
	Error    string

	// ContentSize is the size of the stored raw content in bytes.
	ContentSize int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDocument creates a new Document instance in processing state
func NewDocument(id, tenantID, agentID, filename string, kind ContentKind, metadata map[string]string, contentSize int64, now time.Time) *Document {
	return &Document{
		ID:          id,
		TenantID:    tenantID,
		AgentID:     agentID,
		Filename:    filename,
		Kind:        kind,
		Metadata:    metadata,
		Status:      DocumentStatusProcessing,
		ContentSize: contentSize,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.TenantID == "" {
		return fmt.Errorf("document TenantID is required")
	}

	if !isValidContentKind(d.Kind) {
		return fmt.Errorf("document Kind is invalid: %s", d.Kind)
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// CanTransition reports whether a status transition is permitted. Status
// advances monotonically through pending -> processing -> completed/failed,
// except that a failed document may be retried back to processing.
func CanTransition(from, to DocumentStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case DocumentStatusPending:
		return to == DocumentStatusProcessing || to == DocumentStatusFailed
	case DocumentStatusProcessing:
		return to == DocumentStatusCompleted || to == DocumentStatusFailed
	case DocumentStatusFailed:
		return to == DocumentStatusProcessing
	case DocumentStatusCompleted:
		return false
	}
	return false
}

// isValidContentKind checks if a ContentKind is valid
func isValidContentKind(k ContentKind) bool {
	switch k {
	case ContentKindImage, ContentKindPDF, ContentKindText,
		ContentKindDocument, ContentKindURL, ContentKindUnknown:
		return true
	}
	return false
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing,
		DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}
