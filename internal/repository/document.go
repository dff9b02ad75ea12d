package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parchment-ai/corpusd/internal/domain"
)

// dbtx is the subset of pgx shared by pools and transactions.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const documentColumns = `id, tenant_id, agent_id, filename, kind, status, error, metadata, content_size, created_at, updated_at`

// DocumentRepository is the persistence layer of the document ledger.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Create inserts a document row with its raw content. When the content has
// been offloaded to object storage, content is nil and contentKey carries the
// object key instead.
func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document, content []byte, contentKey string) error {
	if err := domain.ValidateDocument(d); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	metadata := d.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, tenant_id, agent_id, filename, kind, status, error, metadata, content, content_key, content_size, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.TenantID, d.AgentID, d.Filename, d.Kind, d.Status, nullableString(d.Error),
		metadata, content, nullableString(contentKey), d.ContentSize, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)
	return scanDocument(row)
}

// GetContent returns the raw content bytes and the object-storage key for a
// document. Exactly one of the two is set for a well-formed row.
func (r *DocumentRepository) GetContent(ctx context.Context, id string) ([]byte, string, error) {
	var content []byte
	var contentKey *string
	err := r.db.QueryRow(ctx,
		`SELECT content, content_key FROM documents WHERE id = $1`,
		id,
	).Scan(&content, &contentKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", domain.ErrDocumentNotFound
		}
		return nil, "", err
	}

	key := ""
	if contentKey != nil {
		key = *contentKey
	}
	if len(content) == 0 && key == "" {
		return nil, "", domain.ErrContentNotFound
	}
	return content, key, nil
}

// List returns one page of a tenant's documents, newest first, along with the
// total count for that tenant and agent.
func (r *DocumentRepository) List(ctx context.Context, tenantID, agentID string, limit, offset int) ([]*domain.Document, int, error) {
	if tenantID == "" {
		return nil, 0, domain.ErrMissingTenant
	}
	if agentID == "" {
		return nil, 0, domain.ErrMissingAgent
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE tenant_id = $1 AND agent_id = $2`,
		tenantID, agentID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE tenant_id = $1 AND agent_id = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		tenantID, agentID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs, err := scanDocumentRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ListForReconcile returns ledger rows for a reconciliation sweep, oldest
// first. Empty tenantID or agentID widens the sweep to all tenants or agents.
func (r *DocumentRepository) ListForReconcile(ctx context.Context, tenantID, agentID string) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	args := []interface{}{}

	if tenantID != "" {
		args = append(args, tenantID)
		query += ` WHERE tenant_id = $1`
		if agentID != "" {
			args = append(args, agentID)
			query += ` AND agent_id = $2`
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

// UpdateStatus moves a document to a new status, enforcing the monotonic
// transition rules in the same statement so concurrent writers cannot
// resurrect a terminal state.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	sources := transitionSources(status)
	if len(sources) == 0 {
		return domain.ErrInvalidTransition
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, error = $3, updated_at = $4
		 WHERE id = $1 AND status = ANY($5)`,
		id, status, nullableString(errMsg), time.Now().UTC(), sources,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.explainStatusConflict(ctx, id)
	}
	return nil
}

// ClaimForProcessing atomically claims a pending or failed document for
// reprocessing. It reports false when another worker holds the claim or the
// document is already completed.
func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, error = NULL, updated_at = $3
		 WHERE id = $1 AND status = ANY($4)`,
		id, domain.DocumentStatusProcessing, time.Now().UTC(),
		[]domain.DocumentStatus{domain.DocumentStatusPending, domain.DocumentStatusFailed},
	)
	if err != nil {
		return false, err
	}
	if cmdTag.RowsAffected() > 0 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateKind rewrites the stored content kind, used when a reconciliation
// sweep reclassifies a document.
func (r *DocumentRepository) UpdateKind(ctx context.Context, id string, kind domain.ContentKind) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET kind = $2, updated_at = $3 WHERE id = $1`,
		id, kind, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// CountByStatus returns ledger totals per status, used by the stats endpoint
// and reconciliation logging.
func (r *DocumentRepository) CountByStatus(ctx context.Context, tenantID, agentID string) (map[domain.DocumentStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM documents`
	args := []interface{}{}

	if tenantID != "" {
		args = append(args, tenantID)
		query += ` WHERE tenant_id = $1`
		if agentID != "" {
			args = append(args, agentID)
			query += ` AND agent_id = $2`
		}
	}
	query += ` GROUP BY status`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.DocumentStatus]int)
	for rows.Next() {
		var status domain.DocumentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *DocumentRepository) explainStatusConflict(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

// transitionSources lists the statuses a document may be in for a move to
// the target status to be legal.
func transitionSources(to domain.DocumentStatus) []domain.DocumentStatus {
	all := []domain.DocumentStatus{
		domain.DocumentStatusPending,
		domain.DocumentStatusProcessing,
		domain.DocumentStatusCompleted,
		domain.DocumentStatusFailed,
	}
	var sources []domain.DocumentStatus
	for _, from := range all {
		if domain.CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var errMsg *string
	err := row.Scan(&d.ID, &d.TenantID, &d.AgentID, &d.Filename, &d.Kind, &d.Status,
		&errMsg, &d.Metadata, &d.ContentSize, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if errMsg != nil {
		d.Error = *errMsg
	}
	return &d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		var errMsg *string
		if err := rows.Scan(&d.ID, &d.TenantID, &d.AgentID, &d.Filename, &d.Kind, &d.Status,
			&errMsg, &d.Metadata, &d.ContentSize, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if errMsg != nil {
			d.Error = *errMsg
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
