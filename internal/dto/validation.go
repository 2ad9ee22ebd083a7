package dto

import "github.com/noah-isme/tutor-invoicing-api/internal/models"

// ResolveIssueRequest records a manual override against one issue.
type ResolveIssueRequest struct {
	Resolution string `json:"resolution" validate:"required,min=3"`
}

// ResolveIssueResponse returns the updated issue and whether the job is
// now unblocked.
type ResolveIssueResponse struct {
	Issue    models.Issue    `json:"issue"`
	JobStage models.JobStage `json:"job_stage"`
}

// IssueQuery mirrors supported issue listing filters.
type IssueQuery struct {
	Severity string
	Status   string
	Category string
}
