package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/parchment-ai/corpusd/internal/service"
)

// Reconciler runs one reconciliation sweep over the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, input service.ReconcileInput) (*service.ReconcileSummary, error)
}

// ReconcileWorker runs periodic global reconciliation sweeps. It implements
// the JobProcessor interface so the generic Worker poll loop can drive it.
type ReconcileWorker struct {
	reconciler Reconciler
}

// NewReconcileWorker creates a new ReconcileWorker instance
func NewReconcileWorker(reconciler Reconciler) *ReconcileWorker {
	return &ReconcileWorker{reconciler: reconciler}
}

// ProcessJobs implements the JobProcessor interface. An empty input sweeps
// every tenant and agent.
func (w *ReconcileWorker) ProcessJobs(ctx context.Context) error {
	summary, err := w.reconciler.Reconcile(ctx, service.ReconcileInput{})
	if err != nil {
		return fmt.Errorf("reconciliation sweep failed: %w", err)
	}

	if summary.Synced > 0 || summary.Failed > 0 {
		log.Printf("Reconciliation sweep: %d synced, %d skipped, %d failed",
			summary.Synced, summary.Skipped, summary.Failed)
	}
	return nil
}
