package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

// TemplateRepository persists document blueprints.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a template row.
func (r *TemplateRepository) Create(ctx context.Context, tpl *models.Template) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	const query = `INSERT INTO templates (id, name, type, body, schema, is_default, created_at, updated_at)
VALUES (:id, :name, :type, :body, :schema, :is_default, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// GetByID returns a template row.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	const query = `SELECT id, name, type, body, schema, is_default, created_at, updated_at
FROM templates WHERE id = $1`
	var tpl models.Template
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &tpl, nil
}

// GetDefaultByType returns the default blueprint for a document type.
func (r *TemplateRepository) GetDefaultByType(ctx context.Context, docType models.DocumentType) (*models.Template, error) {
	const query = `SELECT id, name, type, body, schema, is_default, created_at, updated_at
FROM templates WHERE type = $1 AND is_default = TRUE ORDER BY updated_at DESC LIMIT 1`
	var tpl models.Template
	if err := r.db.GetContext(ctx, &tpl, query, docType); err != nil {
		return nil, fmt.Errorf("get default template: %w", err)
	}
	return &tpl, nil
}

// List returns templates, optionally filtered by type.
func (r *TemplateRepository) List(ctx context.Context, docType *models.DocumentType) ([]models.Template, error) {
	query := `SELECT id, name, type, body, schema, is_default, created_at, updated_at FROM templates`
	args := make([]interface{}, 0, 1)
	if docType != nil {
		query += " WHERE type = $1"
		args = append(args, *docType)
	}
	query += " ORDER BY type, name"
	var templates []models.Template
	if err := r.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}
