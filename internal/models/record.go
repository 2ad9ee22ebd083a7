package models

import "time"

// RecordSource identifies which uploaded sheet a session record came from.
type RecordSource string

const (
	SourcePayroll  RecordSource = "payroll"
	SourceFeedback RecordSource = "feedback"
)

// Valid returns true when the source is a supported value.
func (s RecordSource) Valid() bool {
	return s == SourcePayroll || s == SourceFeedback
}

// RawSessionRow is one extracted row handed over by the extraction
// collaborator. Fields mirror the sheet columns before normalization.
type RawSessionRow struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	TutorID     string  `json:"tutor_id"`
	TutorName   string  `json:"tutor_name"`
	Date        string  `json:"date"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	NoShow      bool    `json:"no_show"`
	Feedback    *string `json:"feedback,omitempty"`
	Goal        *string `json:"goal,omitempty"`
}

// Record is one normalized tutoring session. It is immutable once
// extracted; Hours is always derived from start/end, never set directly.
type Record struct {
	ID          string       `db:"id" json:"id"`
	JobID       string       `db:"job_id" json:"job_id"`
	Source      RecordSource `db:"source" json:"source"`
	StudentID   string       `db:"student_id" json:"student_id"`
	StudentName string       `db:"student_name" json:"student_name"`
	TutorID     string       `db:"tutor_id" json:"tutor_id"`
	TutorName   string       `db:"tutor_name" json:"tutor_name"`
	Date        time.Time    `db:"date" json:"date"`
	StartTime   string       `db:"start_time" json:"start_time"`
	EndTime     string       `db:"end_time" json:"end_time"`
	Hours       float64      `db:"hours" json:"hours"`
	NoShow      bool         `db:"no_show" json:"no_show"`
	Feedback    *string      `db:"feedback" json:"feedback,omitempty"`
	Goal        *string      `db:"goal" json:"goal,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// RowError reports one source row that failed normalization. The row is
// excluded from the record set; the batch itself is not rejected.
type RowError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}
