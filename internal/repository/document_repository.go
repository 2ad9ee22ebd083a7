package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

// DocumentRepository persists generated artifacts. Rows are immutable
// once written; retries record a new attempt instead of updating.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// BulkInsert stores the documents of one generation attempt.
func (r *DocumentRepository) BulkInsert(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		if docs[i].GeneratedAt.IsZero() {
			docs[i].GeneratedAt = now
		}
	}
	const query = `INSERT INTO documents (id, job_id, type, status, path, reason, attempt, generated_at)
VALUES (:id, :job_id, :type, :status, :path, :reason, :attempt, :generated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, docs); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	return nil
}

// GetByID returns one document row.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	const query = `SELECT id, job_id, type, status, path, reason, attempt, generated_at
FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListByJob returns documents for a job, optionally filtered by type,
// newest attempt first.
func (r *DocumentRepository) ListByJob(ctx context.Context, jobID string, docType *models.DocumentType) ([]models.Document, error) {
	query := `SELECT id, job_id, type, status, path, reason, attempt, generated_at
FROM documents WHERE job_id = $1`
	args := []interface{}{jobID}
	if docType != nil {
		query += " AND type = $2"
		args = append(args, *docType)
	}
	query += " ORDER BY attempt DESC, type"
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// LatestAttempt returns the highest generation attempt recorded for a job.
func (r *DocumentRepository) LatestAttempt(ctx context.Context, jobID string) (int, error) {
	const query = `SELECT COALESCE(MAX(attempt), 0) FROM documents WHERE job_id = $1`
	var attempt int
	if err := r.db.GetContext(ctx, &attempt, query, jobID); err != nil {
		return 0, fmt.Errorf("latest document attempt: %w", err)
	}
	return attempt, nil
}

// CountAll returns the total number of generated documents.
func (r *DocumentRepository) CountAll(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM documents`
	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}
