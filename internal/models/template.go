package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DocumentType enumerates the four fixed output document kinds.
type DocumentType string

const (
	DocTypeAttendanceRecord DocumentType = "attendance_record"
	DocTypeProgressReport   DocumentType = "progress_report"
	DocTypeInvoice          DocumentType = "invoice"
	DocTypeServiceLog       DocumentType = "service_log"
)

// Valid returns true when the type is one of the four supported kinds.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeAttendanceRecord, DocTypeProgressReport, DocTypeInvoice, DocTypeServiceLog:
		return true
	default:
		return false
	}
}

// AllDocumentTypes lists the generation fan-out targets in stable order.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{DocTypeAttendanceRecord, DocTypeProgressReport, DocTypeInvoice, DocTypeServiceLog}
}

// TemplateSchema declares the variables a template expects and the
// per-type defaults applied when a variable is absent. Persisted as JSONB.
type TemplateSchema struct {
	Variables []string          `json:"variables"`
	Defaults  map[string]string `json:"defaults,omitempty"`
}

// Value marshals the schema to JSON for persistence.
func (s TemplateSchema) Value() (driver.Value, error) {
	if s.Variables == nil {
		s.Variables = []string{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal template schema: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the schema struct.
func (s *TemplateSchema) Scan(value interface{}) error {
	if value == nil {
		*s = TemplateSchema{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for TemplateSchema", value)
	}
	if len(data) == 0 {
		*s = TemplateSchema{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal template schema: %w", err)
	}
	return nil
}

// Template is a named document blueprint with placeholder variables.
// Templates are owned independently of jobs and referenced, never copied,
// during generation.
type Template struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Type      DocumentType   `db:"type" json:"type"`
	Body      string         `db:"body" json:"body"`
	Schema    TemplateSchema `db:"schema" json:"schema"`
	IsDefault bool           `db:"is_default" json:"is_default"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
