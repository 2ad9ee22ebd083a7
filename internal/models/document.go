package models

import "time"

// DocumentStatus records the per-document generation outcome.
type DocumentStatus string

const (
	DocumentStatusOK     DocumentStatus = "ok"
	DocumentStatusFailed DocumentStatus = "failed"
)

// Document is one generated artifact for a job. A job holds at most one
// document per type per generation attempt; rows are immutable once
// created.
type Document struct {
	ID          string         `db:"id" json:"id"`
	JobID       string         `db:"job_id" json:"job_id"`
	Type        DocumentType   `db:"type" json:"type"`
	Status      DocumentStatus `db:"status" json:"status"`
	Path        *string        `db:"path" json:"-"`
	DownloadURL *string        `db:"-" json:"download_url,omitempty"`
	Reason      *string        `db:"reason" json:"reason,omitempty"`
	Attempt     int            `db:"attempt" json:"attempt"`
	GeneratedAt time.Time      `db:"generated_at" json:"generated_at"`
}
