package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

// JobRepository persists pipeline job rows.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs the repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row with generated defaults.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Stage == "" {
		job.Stage = models.StageIngested
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	const query = `INSERT INTO jobs (id, month, year, stage, created_by, created_at, updated_at, completed_at)
VALUES (:id, :month, :year, :stage, :created_by, :created_at, :updated_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	const query = `SELECT id, month, year, stage, created_by, created_at, updated_at, completed_at
FROM jobs WHERE id = $1`
	var job models.Job
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs matching the filter plus the total count.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error) {
	where := "WHERE 1=1"
	args := make([]interface{}, 0, 4)
	argPos := 1

	if filter.Stage != nil {
		where += fmt.Sprintf(" AND stage = $%d", argPos)
		args = append(args, *filter.Stage)
		argPos++
	}
	if filter.CreatedBy != "" {
		where += fmt.Sprintf(" AND created_by = $%d", argPos)
		args = append(args, filter.CreatedBy)
		argPos++
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT id, month, year, stage, created_by, created_at, updated_at, completed_at
FROM jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argPos, argPos+1)
	args = append(args, pageSize, (page-1)*pageSize)

	var jobsOut []models.Job
	if err := r.db.SelectContext(ctx, &jobsOut, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobsOut, total, nil
}

// UpdateStage transitions the persisted stage; completedAt is set only
// for terminal stages.
func (r *JobRepository) UpdateStage(ctx context.Context, id string, stage models.JobStage) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if stage.Terminal() {
		completedAt = &now
	}
	const query = `UPDATE jobs SET stage = $1, updated_at = $2, completed_at = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, stage, now, completedAt, id)
	if err != nil {
		return fmt.Errorf("update job stage: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update job stage: job %s not found", id)
	}
	return nil
}

// CountByStage aggregates jobs per stage for dashboard stats.
func (r *JobRepository) CountByStage(ctx context.Context) ([]models.JobStageCount, error) {
	const query = `SELECT stage, COUNT(*) AS count FROM jobs GROUP BY stage ORDER BY stage`
	var counts []models.JobStageCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count jobs by stage: %w", err)
	}
	return counts, nil
}
