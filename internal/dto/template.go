package dto

import "github.com/noah-isme/tutor-invoicing-api/internal/models"

// CreateTemplateRequest captures POST /templates payload.
type CreateTemplateRequest struct {
	Name      string              `json:"name" validate:"required,min=3"`
	Type      models.DocumentType `json:"type" validate:"required"`
	Body      string              `json:"body" validate:"required"`
	Variables []string            `json:"variables"`
	Defaults  map[string]string   `json:"defaults,omitempty"`
	IsDefault bool                `json:"is_default"`
}
