package dto

import "github.com/noah-isme/tutor-invoicing-api/internal/models"

// IngestJobRequest captures POST /jobs payload: both extracted source
// sheets for one billing month. Rows arrive already structured from the
// extraction collaborator.
type IngestJobRequest struct {
	Month        int                    `json:"month" validate:"required,min=1,max=12"`
	Year         int                    `json:"year" validate:"required,min=2000"`
	PayrollRows  []models.RawSessionRow `json:"payroll_rows" validate:"required,min=1"`
	FeedbackRows []models.RawSessionRow `json:"feedback_rows" validate:"required,min=1"`
}

// IngestJobResponse is returned after a job is created.
type IngestJobResponse struct {
	ID        string            `json:"id"`
	Stage     models.JobStage   `json:"stage"`
	Records   int               `json:"records"`
	RowErrors []models.RowError `json:"row_errors,omitempty"`
}

// JobResponse exposes job metadata for reads and polling.
type JobResponse struct {
	ID          string          `json:"id"`
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	Stage       models.JobStage `json:"stage"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   string          `json:"created_at"`
	CompletedAt *string         `json:"completed_at,omitempty"`
}

// ValidateJobResponse reports the outcome of a validation pass.
type ValidateJobResponse struct {
	JobID  string          `json:"job_id"`
	Stage  models.JobStage `json:"stage"`
	Issues []models.Issue  `json:"issues"`
}

// ProceedResponse acknowledges that generation was started.
type ProceedResponse struct {
	JobID string          `json:"job_id"`
	Stage models.JobStage `json:"stage"`
}

// JobQuery mirrors supported job listing filters.
type JobQuery struct {
	Stage    string
	Page     int
	PageSize int
}

// StageCatalogEntry describes one pipeline stage for dashboards. The
// catalogue is static display data, not a progress guarantee.
type StageCatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PipelineStats aggregates counts for the dashboard.
type PipelineStats struct {
	ActiveJobs     int                    `json:"active_jobs"`
	CompletedJobs  int                    `json:"completed_jobs"`
	FailedJobs     int                    `json:"failed_jobs"`
	TotalDocuments int                    `json:"total_documents"`
	JobsByStage    []models.JobStageCount `json:"jobs_by_stage"`
}
