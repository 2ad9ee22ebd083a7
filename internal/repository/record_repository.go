package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

// RecordRepository persists normalized session records. Records are
// written once at ingestion and only read afterwards.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// BulkInsert stores a batch of records for a job.
func (r *RecordRepository) BulkInsert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
	}
	const query = `INSERT INTO records (id, job_id, source, student_id, student_name, tutor_id, tutor_name, date, start_time, end_time, hours, no_show, feedback, goal, created_at)
VALUES (:id, :job_id, :source, :student_id, :student_name, :tutor_id, :tutor_name, :date, :start_time, :end_time, :hours, :no_show, :feedback, :goal, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, records); err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	return nil
}

// ListByJob returns every record for a job, optionally scoped to one
// source sheet, in deterministic order.
func (r *RecordRepository) ListByJob(ctx context.Context, jobID string, source *models.RecordSource) ([]models.Record, error) {
	query := `SELECT id, job_id, source, student_id, student_name, tutor_id, tutor_name, date, start_time, end_time, hours, no_show, feedback, goal, created_at
FROM records WHERE job_id = $1`
	args := []interface{}{jobID}
	if source != nil {
		query += " AND source = $2"
		args = append(args, *source)
	}
	query += " ORDER BY student_id, date, start_time"
	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}
