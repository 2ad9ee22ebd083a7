package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-invoicing-api/internal/dto"
	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
)

func newTemplateService() (*TemplateService, *templateStoreStub) {
	store := &templateStoreStub{}
	return NewTemplateService(store, zap.NewNop()), store
}

func TestTemplateCreateDerivesVariablesFromBody(t *testing.T) {
	svc, _ := newTemplateService()
	tpl, err := svc.Create(context.Background(), dto.CreateTemplateRequest{
		Name: "march invoice",
		Type: models.DocTypeInvoice,
		Body: "Invoice for {{month}} {{year}} at {{rate}}",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"month", "year", "rate"}, tpl.Schema.Variables)
}

func TestTemplateCreateKeepsDeclaredVariables(t *testing.T) {
	svc, _ := newTemplateService()
	tpl, err := svc.Create(context.Background(), dto.CreateTemplateRequest{
		Name:      "attendance",
		Type:      models.DocTypeAttendanceRecord,
		Body:      "Attendance {{month}}",
		Variables: []string{"month", "extra"},
		Defaults:  map[string]string{"extra": "n/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"month", "extra"}, tpl.Schema.Variables)
	assert.Equal(t, "n/a", tpl.Schema.Defaults["extra"])
}

func TestTemplateCreateRejectsUnknownType(t *testing.T) {
	svc, _ := newTemplateService()
	_, err := svc.Create(context.Background(), dto.CreateTemplateRequest{
		Name: "bogus",
		Type: models.DocumentType("receipt"),
		Body: "x",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTemplateGetMissingFails(t *testing.T) {
	svc, _ := newTemplateService()
	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTemplateListRejectsUnknownTypeFilter(t *testing.T) {
	svc, _ := newTemplateService()
	_, err := svc.List(context.Background(), "receipt")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
