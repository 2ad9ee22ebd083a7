package models

import (
	"fmt"
	"time"
)

// IssueSeverity ranks a validation finding. Errors block generation,
// warnings do not.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// IssueCategory names the business rule that produced a finding.
type IssueCategory string

const (
	CategoryContractPeriod     IssueCategory = "contract_period"
	CategoryWorkingHours       IssueCategory = "working_hours"
	CategoryHourReconciliation IssueCategory = "hour_reconciliation"
	CategoryNoShowCap          IssueCategory = "no_show_cap"
	CategoryWeeklyHourCap      IssueCategory = "weekly_hour_cap"
)

// IssueStatus tracks the resolution lifecycle.
type IssueStatus string

const (
	IssueStatusPending  IssueStatus = "pending"
	IssueStatusResolved IssueStatus = "resolved"
)

// Issue is a single validation finding tied to a job. Issues are created
// only by the rule engine and are append-only; resolution mutates status
// and resolution text, nothing else. Pass ties a finding to one
// validation attempt: blocking checks look at the latest pass, earlier
// passes remain as history.
type Issue struct {
	ID         string        `db:"id" json:"id"`
	JobID      string        `db:"job_id" json:"job_id"`
	Pass       int           `db:"pass" json:"pass"`
	Severity   IssueSeverity `db:"severity" json:"severity"`
	Category   IssueCategory `db:"category" json:"category"`
	Message    string        `db:"message" json:"message"`
	StudentID  string        `db:"student_id" json:"student_id"`
	TutorID    string        `db:"tutor_id" json:"tutor_id"`
	Date       *time.Time    `db:"date" json:"date,omitempty"`
	Status     IssueStatus   `db:"status" json:"status"`
	Resolution *string       `db:"resolution" json:"resolution,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// DedupeKey identifies equivalent findings across a validation pass.
func (i Issue) DedupeKey() string {
	date := ""
	if i.Date != nil {
		date = i.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", i.Category, i.StudentID, i.TutorID, date, i.Message)
}

// IssueSummary aggregates findings for a job.
type IssueSummary struct {
	Total      int                   `json:"total"`
	Errors     int                   `json:"errors"`
	Warnings   int                   `json:"warnings"`
	Resolved   int                   `json:"resolved"`
	Unresolved int                   `json:"unresolved"`
	ByCategory map[IssueCategory]int `json:"by_category"`
}
