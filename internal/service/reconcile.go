package service

import (
	"context"
	"log"
	"time"

	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/metrics"
	"github.com/parchment-ai/corpusd/internal/telemetry"
)

// DocumentProcessor runs the extraction-to-storage pipeline for one document
// and reports how many chunks it produced.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, doc *domain.Document, content []byte) (int, error)
}

const defaultStaleAfter = 15 * time.Minute

// ReconcileService sweeps the ledger and drives every document toward the
// invariant that completed means covered: vectors exist for every completed
// document, and pending or failed documents get another attempt. Sweeps are
// idempotent; a document already in its goal state is skipped untouched.
type ReconcileService struct {
	ledger    DocumentLedger
	store     VectorStore
	processor DocumentProcessor
	classify  ClassifyFunc
	content   ContentStore

	// staleAfter is how long a processing claim may sit before a sweep
	// treats the worker as dead and takes the document over.
	staleAfter time.Duration
}

// NewReconcileService creates a ReconcileService. content may be nil when
// raw content lives in the ledger.
func NewReconcileService(
	ledger DocumentLedger,
	store VectorStore,
	processor DocumentProcessor,
	classify ClassifyFunc,
	content ContentStore,
) *ReconcileService {
	return &ReconcileService{
		ledger:     ledger,
		store:      store,
		processor:  processor,
		classify:   classify,
		content:    content,
		staleAfter: defaultStaleAfter,
	}
}

// ReconcileInput scopes a sweep. Empty fields widen the sweep.
type ReconcileInput struct {
	TenantID string
	AgentID  string
}

// ReconcileSummary reports what one sweep did.
type ReconcileSummary struct {
	Synced  int
	Skipped int
	Failed  int
}

type reconcileOutcome int

const (
	outcomeSkipped reconcileOutcome = iota
	outcomeSynced
	outcomeFailed
)

// Reconcile runs one sweep. Per-document failures are absorbed into the
// summary; only a ledger scan failure aborts the sweep.
func (s *ReconcileService) Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReconcileService.Reconcile", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		AgentID:   input.AgentID,
		Operation: "reconcile",
	})
	defer span.End()

	docs, err := s.ledger.ListForReconcile(ctx, input.TenantID, input.AgentID)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeLedger,
			"failed to scan ledger for reconciliation", err)
	}

	summary := &ReconcileSummary{}
	for _, doc := range docs {
		switch s.reconcileOne(ctx, doc) {
		case outcomeSynced:
			summary.Synced++
			metrics.ReconcileDocuments.WithLabelValues("synced").Inc()
		case outcomeSkipped:
			summary.Skipped++
			metrics.ReconcileDocuments.WithLabelValues("skipped").Inc()
		case outcomeFailed:
			summary.Failed++
			metrics.ReconcileDocuments.WithLabelValues("failed").Inc()
		}
	}

	log.Printf("reconcile: sweep done (synced=%d skipped=%d failed=%d)",
		summary.Synced, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *ReconcileService) reconcileOne(ctx context.Context, doc *domain.Document) reconcileOutcome {
	switch doc.Status {
	case domain.DocumentStatusCompleted:
		return s.reconcileCompleted(ctx, doc)
	case domain.DocumentStatusProcessing:
		return s.reconcileProcessing(ctx, doc)
	case domain.DocumentStatusPending, domain.DocumentStatusFailed:
		return s.reconcileClaimable(ctx, doc)
	}
	return outcomeSkipped
}

// reconcileCompleted verifies vector coverage. A completed document missing
// its vectors is re-embedded in place; status stays completed because the
// ledger outcome was correct, only the store lost data.
func (s *ReconcileService) reconcileCompleted(ctx context.Context, doc *domain.Document) reconcileOutcome {
	covered, err := s.store.HasDocument(ctx, doc.TenantID, doc.AgentID, doc.ID)
	if err != nil {
		log.Printf("reconcile: coverage check failed for %s: %v", doc.ID, err)
		return outcomeFailed
	}
	if covered {
		return outcomeSkipped
	}

	log.Printf("reconcile: completed document %s has no vectors, re-embedding", doc.ID)
	if err := s.reprocess(ctx, doc); err != nil {
		log.Printf("reconcile: re-embedding %s failed: %v", doc.ID, err)
		return outcomeFailed
	}
	return outcomeSynced
}

// reconcileProcessing leaves live claims alone and takes over abandoned ones.
// A dead worker may have stored its vectors before losing the status write, so
// coverage is checked before the pipeline runs again.
func (s *ReconcileService) reconcileProcessing(ctx context.Context, doc *domain.Document) reconcileOutcome {
	if time.Since(doc.UpdatedAt) < s.staleAfter {
		return outcomeSkipped
	}

	covered, err := s.store.HasDocument(ctx, doc.TenantID, doc.AgentID, doc.ID)
	if err != nil {
		log.Printf("reconcile: coverage check failed for %s: %v", doc.ID, err)
		return outcomeFailed
	}
	if covered {
		log.Printf("reconcile: stale claim on %s already has vectors, settling status", doc.ID)
		return s.markCompleted(ctx, doc)
	}

	log.Printf("reconcile: taking over stale processing claim on %s", doc.ID)
	if err := s.reprocess(ctx, doc); err != nil {
		s.recordFailure(ctx, doc, err)
		return outcomeFailed
	}
	return s.markCompleted(ctx, doc)
}

// reconcileClaimable claims a pending or failed document and reruns the
// pipeline. Losing the claim to a concurrent worker is a skip, not an error.
// Documents that already have vector coverage settle to completed without
// reprocessing; running the pipeline again would store a second copy of every
// chunk under fresh point IDs.
func (s *ReconcileService) reconcileClaimable(ctx context.Context, doc *domain.Document) reconcileOutcome {
	claimed, err := s.ledger.ClaimForProcessing(ctx, doc.ID)
	if err != nil {
		log.Printf("reconcile: claim failed for %s: %v", doc.ID, err)
		return outcomeFailed
	}
	if !claimed {
		return outcomeSkipped
	}

	covered, err := s.store.HasDocument(ctx, doc.TenantID, doc.AgentID, doc.ID)
	if err != nil {
		log.Printf("reconcile: coverage check failed for %s: %v", doc.ID, err)
		return outcomeFailed
	}
	if covered {
		log.Printf("reconcile: document %s already has vectors, settling status", doc.ID)
		return s.markCompleted(ctx, doc)
	}

	if err := s.reprocess(ctx, doc); err != nil {
		s.recordFailure(ctx, doc, err)
		return outcomeFailed
	}
	return s.markCompleted(ctx, doc)
}

func (s *ReconcileService) markCompleted(ctx context.Context, doc *domain.Document) reconcileOutcome {
	if err := s.ledger.UpdateStatus(ctx, doc.ID, domain.DocumentStatusCompleted, ""); err != nil {
		log.Printf("reconcile: failed to mark %s completed: %v", doc.ID, err)
		return outcomeFailed
	}
	return outcomeSynced
}

func (s *ReconcileService) reprocess(ctx context.Context, doc *domain.Document) error {
	content, err := s.fetchContent(ctx, doc)
	if err != nil {
		return err
	}
	s.reclassify(ctx, doc, content)
	_, err = s.processor.ProcessDocument(ctx, doc, content)
	return err
}

func (s *ReconcileService) fetchContent(ctx context.Context, doc *domain.Document) ([]byte, error) {
	content, key, err := s.ledger.GetContent(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 {
		return content, nil
	}
	if key != "" && s.content != nil {
		return s.content.GetContent(ctx, key)
	}
	return nil, domain.ErrContentNotFound
}

// reclassify fixes documents whose stored kind no longer matches their
// content, most commonly text uploads that are really a bare URL.
func (s *ReconcileService) reclassify(ctx context.Context, doc *domain.Document, content []byte) {
	kind := s.classify(content, doc.Filename)
	if kind == doc.Kind || kind == domain.ContentKindUnknown {
		return
	}
	if err := s.ledger.UpdateKind(ctx, doc.ID, kind); err != nil {
		log.Printf("reconcile: failed to reclassify %s from %s to %s: %v", doc.ID, doc.Kind, kind, err)
		return
	}
	log.Printf("reconcile: reclassified document %s from %s to %s", doc.ID, doc.Kind, kind)
	doc.Kind = kind
}

func (s *ReconcileService) recordFailure(ctx context.Context, doc *domain.Document, cause error) {
	telemetry.CaptureError(ctx, cause)
	if !domain.IsRetryable(cause) {
		// Classification and extraction failures repeat until the content or
		// kind changes; sweeps alone will not settle this document.
		log.Printf("reconcile: document %s failed permanently: %v", doc.ID, cause)
	}
	if err := s.ledger.UpdateStatus(ctx, doc.ID, domain.DocumentStatusFailed, cause.Error()); err != nil {
		log.Printf("reconcile: failed to record failure for %s: %v", doc.ID, err)
	}
}
