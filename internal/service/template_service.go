package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-invoicing-api/internal/dto"
	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
	pkgtemplate "github.com/noah-isme/tutor-invoicing-api/pkg/template"
)

// TemplateStore abstracts blueprint persistence.
type TemplateStore interface {
	Create(ctx context.Context, tpl *models.Template) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	GetDefaultByType(ctx context.Context, docType models.DocumentType) (*models.Template, error)
	List(ctx context.Context, docType *models.DocumentType) ([]models.Template, error)
}

// TemplateService manages document blueprints.
type TemplateService struct {
	store    TemplateStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewTemplateService wires the template service.
func NewTemplateService(store TemplateStore, logger *zap.Logger) *TemplateService {
	return &TemplateService{store: store, validate: validator.New(), logger: logger}
}

// Create stores a new blueprint. When the caller does not declare the
// variable list it is derived from the placeholders in the body.
func (s *TemplateService) Create(ctx context.Context, req dto.CreateTemplateRequest) (*models.Template, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported document type %q", req.Type))
	}

	variables := req.Variables
	if len(variables) == 0 {
		variables = pkgtemplate.Placeholders(req.Body)
	}

	tpl := &models.Template{
		Name:      req.Name,
		Type:      req.Type,
		Body:      req.Body,
		Schema:    models.TemplateSchema{Variables: variables, Defaults: req.Defaults},
		IsDefault: req.IsDefault,
	}
	if err := s.store.Create(ctx, tpl); err != nil {
		return nil, err
	}

	s.logger.Info("template created",
		zap.String("template_id", tpl.ID),
		zap.String("type", string(tpl.Type)),
		zap.Bool("is_default", tpl.IsDefault),
	)
	return tpl, nil
}

// Get returns one blueprint.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.Template, error) {
	tpl, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, err
	}
	return tpl, nil
}

// List returns blueprints, optionally scoped to one document type.
func (s *TemplateService) List(ctx context.Context, docType string) ([]models.Template, error) {
	var filter *models.DocumentType
	if docType != "" {
		parsed := models.DocumentType(docType)
		if !parsed.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported document type %q", docType))
		}
		filter = &parsed
	}
	return s.store.List(ctx, filter)
}
