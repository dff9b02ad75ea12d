package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeClassification = "CLASSIFICATION_FAILED"
	ErrCodeExtraction     = "EXTRACTION_FAILED"
	ErrCodeChunking       = "CHUNKING_DEGENERATE"
	ErrCodeEmbedding      = "EMBEDDING_FAILED"
	ErrCodeStore          = "STORE_FAILED"
	ErrCodeLedger         = "LEDGER_FAILED"
)

// Validation errors
var (
	ErrMissingTenant         = NewDomainError(ErrCodeValidation, "tenant id is required")
	ErrMissingAgent          = NewDomainError(ErrCodeValidation, "agent id is required")
	ErrInvalidDocumentStatus = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidTransition     = NewDomainError(ErrCodeValidation, "invalid status transition")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrContentNotFound  = NewDomainError(ErrCodeNotFound, "document content not found")
)

// Pipeline errors. Classification and extraction failures are permanent for a
// given document content; embedding and store failures are retryable.
var (
	ErrUnknownContent     = NewDomainError(ErrCodeClassification, "content could not be classified")
	ErrNoExtractableText  = NewDomainError(ErrCodeExtraction, "no extractable text in document")
	ErrChunkingDegenerate = NewDomainError(ErrCodeChunking, "chunking produced no chunks from non-empty text")
	ErrEmbeddingFailed    = NewDomainError(ErrCodeEmbedding, "embedding generation failed")
	ErrStoreFailed        = NewDomainError(ErrCodeStore, "vector store write failed")
	ErrLedgerFailed       = NewDomainError(ErrCodeLedger, "document ledger update failed")
)

// IsRetryable reports whether an error belongs to the retryable part of the
// pipeline taxonomy. Classification and extraction failures only change when
// the source content changes, so retrying them is wasted work.
func IsRetryable(err error) bool {
	domainErr, ok := err.(*DomainError)
	if !ok {
		return true
	}
	switch domainErr.Code {
	case ErrCodeClassification, ErrCodeExtraction, ErrCodeChunking:
		return false
	}
	return true
}
