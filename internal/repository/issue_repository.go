package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

// IssueRepository persists validation findings. Rows are append-only:
// validation passes insert, resolution updates status and text, nothing
// is ever deleted.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// BulkInsert stores the findings of one validation pass.
func (r *IssueRepository) BulkInsert(ctx context.Context, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range issues {
		if issues[i].ID == "" {
			issues[i].ID = uuid.NewString()
		}
		if issues[i].Status == "" {
			issues[i].Status = models.IssueStatusPending
		}
		if issues[i].CreatedAt.IsZero() {
			issues[i].CreatedAt = now
		}
	}
	const query = `INSERT INTO issues (id, job_id, pass, severity, category, message, student_id, tutor_id, date, status, resolution, created_at, resolved_at)
VALUES (:id, :job_id, :pass, :severity, :category, :message, :student_id, :tutor_id, :date, :status, :resolution, :created_at, :resolved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, issues); err != nil {
		return fmt.Errorf("insert issues: %w", err)
	}
	return nil
}

// GetByID returns one issue.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	const query = `SELECT id, job_id, pass, severity, category, message, student_id, tutor_id, date, status, resolution, created_at, resolved_at
FROM issues WHERE id = $1`
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return &issue, nil
}

// ListByJob returns issues for a job in deterministic order. When
// latestPassOnly is set, findings from superseded passes are skipped.
func (r *IssueRepository) ListByJob(ctx context.Context, jobID string, latestPassOnly bool) ([]models.Issue, error) {
	query := `SELECT id, job_id, pass, severity, category, message, student_id, tutor_id, date, status, resolution, created_at, resolved_at
FROM issues WHERE job_id = $1`
	if latestPassOnly {
		query += ` AND pass = (SELECT COALESCE(MAX(pass), 0) FROM issues WHERE job_id = $1)`
	}
	query += ` ORDER BY student_id, date, category, message`
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, jobID); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

// LatestPass returns the highest validation pass number recorded for a job.
func (r *IssueRepository) LatestPass(ctx context.Context, jobID string) (int, error) {
	const query = `SELECT COALESCE(MAX(pass), 0) FROM issues WHERE job_id = $1`
	var pass int
	if err := r.db.GetContext(ctx, &pass, query, jobID); err != nil {
		return 0, fmt.Errorf("latest issue pass: %w", err)
	}
	return pass, nil
}

// CountUnresolvedErrors counts blocking findings in the latest pass.
func (r *IssueRepository) CountUnresolvedErrors(ctx context.Context, jobID string) (int, error) {
	const query = `SELECT COUNT(*) FROM issues
WHERE job_id = $1 AND severity = 'error' AND status = 'pending'
AND pass = (SELECT COALESCE(MAX(pass), 0) FROM issues WHERE job_id = $1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, jobID); err != nil {
		return 0, fmt.Errorf("count unresolved errors: %w", err)
	}
	return count, nil
}

// Resolve marks a pending issue resolved. The WHERE clause guards the
// idempotence rule: resolving twice affects zero rows.
func (r *IssueRepository) Resolve(ctx context.Context, id, resolution string, resolvedAt time.Time) (int64, error) {
	const query = `UPDATE issues SET status = 'resolved', resolution = $1, resolved_at = $2
WHERE id = $3 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, resolution, resolvedAt, id)
	if err != nil {
		return 0, fmt.Errorf("resolve issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resolve issue rows affected: %w", err)
	}
	return affected, nil
}
