package models

import "time"

// JobStage captures the invoicing pipeline lifecycle states.
type JobStage string

const (
	StageIngested           JobStage = "ingested"
	StageValidating         JobStage = "validating"
	StageAwaitingResolution JobStage = "awaiting_resolution"
	StageClean              JobStage = "clean"
	StageGenerating         JobStage = "generating"
	StageCompleted          JobStage = "completed"
	StageFailed             JobStage = "failed"
)

// Terminal reports whether the stage admits no further transitions.
func (s JobStage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

var allowedTransitions = map[JobStage][]JobStage{
	StageIngested:           {StageValidating},
	StageValidating:         {StageAwaitingResolution, StageClean},
	StageAwaitingResolution: {StageClean, StageValidating},
	StageClean:              {StageGenerating, StageValidating},
	StageGenerating:         {StageCompleted, StageFailed},
}

// CanTransition reports whether moving from s to next is a legal step.
func (s JobStage) CanTransition(next JobStage) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Job is one end-to-end processing run from ingestion through document
// generation. Once the stage is terminal the row is immutable except for
// audit reads.
type Job struct {
	ID          string     `db:"id" json:"id"`
	Month       int        `db:"month" json:"month"`
	Year        int        `db:"year" json:"year"`
	Stage       JobStage   `db:"stage" json:"stage"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// JobFilter scopes job listing queries.
type JobFilter struct {
	Stage     *JobStage
	CreatedBy string
	Page      int
	PageSize  int
}

// JobStageCount aggregates jobs per stage for the dashboard.
type JobStageCount struct {
	Stage JobStage `db:"stage" json:"stage"`
	Count int      `db:"count" json:"count"`
}
