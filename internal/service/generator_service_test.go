package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	"github.com/noah-isme/tutor-invoicing-api/pkg/config"
	"github.com/noah-isme/tutor-invoicing-api/pkg/storage"
)

type templateStoreStub struct {
	templates map[models.DocumentType]*models.Template
}

func (s *templateStoreStub) Create(ctx context.Context, tpl *models.Template) error {
	if s.templates == nil {
		s.templates = make(map[models.DocumentType]*models.Template)
	}
	s.templates[tpl.Type] = tpl
	return nil
}

func (s *templateStoreStub) GetByID(ctx context.Context, id string) (*models.Template, error) {
	for _, tpl := range s.templates {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *templateStoreStub) GetDefaultByType(ctx context.Context, docType models.DocumentType) (*models.Template, error) {
	tpl, ok := s.templates[docType]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return tpl, nil
}

func (s *templateStoreStub) List(ctx context.Context, docType *models.DocumentType) ([]models.Template, error) {
	var out []models.Template
	for _, tpl := range s.templates {
		if docType != nil && tpl.Type != *docType {
			continue
		}
		out = append(out, *tpl)
	}
	return out, nil
}

type documentStoreStub struct {
	docs []models.Document
}

func (s *documentStoreStub) BulkInsert(ctx context.Context, docs []models.Document) error {
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = fmt.Sprintf("doc-%d", len(s.docs)+i+1)
		}
	}
	s.docs = append(s.docs, docs...)
	return nil
}

func (s *documentStoreStub) GetByID(ctx context.Context, id string) (*models.Document, error) {
	for _, doc := range s.docs {
		if doc.ID == id {
			copied := doc
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *documentStoreStub) ListByJob(ctx context.Context, jobID string, docType *models.DocumentType) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range s.docs {
		if doc.JobID != jobID {
			continue
		}
		if docType != nil && doc.Type != *docType {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *documentStoreStub) LatestAttempt(ctx context.Context, jobID string) (int, error) {
	latest := 0
	for _, doc := range s.docs {
		if doc.JobID == jobID && doc.Attempt > latest {
			latest = doc.Attempt
		}
	}
	return latest, nil
}

func (s *documentStoreStub) CountAll(ctx context.Context) (int, error) {
	return len(s.docs), nil
}

func seedTemplates(store *templateStoreStub, withInvoiceRateDefault bool) {
	bodies := map[models.DocumentType]string{
		models.DocTypeAttendanceRecord: "Attendance for {{period}}",
		models.DocTypeProgressReport:   "Progress for {{period}}",
		models.DocTypeInvoice:          "Invoice for {{period}} at rate {{rate}}",
		models.DocTypeServiceLog:       "Service log for {{period}}",
	}
	for docType, body := range bodies {
		tpl := &models.Template{
			ID:        "tpl-" + string(docType),
			Name:      "default " + string(docType),
			Type:      docType,
			Body:      body,
			IsDefault: true,
		}
		if docType == models.DocTypeInvoice && withInvoiceRateDefault {
			tpl.Schema.Defaults = map[string]string{"rate": "45.00"}
		}
		store.Create(context.Background(), tpl) //nolint:errcheck
	}
}

type generatorFixture struct {
	jobStore  *jobStoreStub
	records   *recordStoreStub
	documents *documentStoreStub
	templates *templateStoreStub
	service   *GeneratorService
}

func newGeneratorFixture(t *testing.T, rate float64, seed ...*models.Job) *generatorFixture {
	t.Helper()
	artifacts, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &generatorFixture{
		jobStore:  newJobStoreStub(seed...),
		records:   &recordStoreStub{},
		documents: &documentStoreStub{},
		templates: &templateStoreStub{},
	}
	f.service = NewGeneratorService(
		f.jobStore, f.records, f.documents, f.templates,
		artifacts, storage.NewSignedURLSigner("test-secret", time.Hour),
		&cacheStub{}, nil,
		config.PipelineConfig{DefaultHourlyRate: rate},
		config.DocumentsConfig{GeneratorTimeout: 10 * time.Second},
		zap.NewNop(),
	)
	return f
}

func generatingJob() *models.Job {
	return &models.Job{ID: "job-1", Month: 3, Year: 2024, Stage: models.StageGenerating}
}

func seedSessions(f *generatorFixture) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	goal := "fractions"
	feedback := "good focus"
	f.records.records = []models.Record{
		{JobID: "job-1", Source: models.SourceFeedback, StudentID: "S1", StudentName: "Mia", TutorID: "T1", TutorName: "Ada", Date: date, StartTime: "10:00", EndTime: "11:30", Hours: 1.5, Goal: &goal, Feedback: &feedback},
		{JobID: "job-1", Source: models.SourceFeedback, StudentID: "S1", StudentName: "Mia", TutorID: "T1", TutorName: "Ada", Date: date.AddDate(0, 0, 7), NoShow: true},
	}
}

func TestGenerateProducesAllFourDocuments(t *testing.T) {
	f := newGeneratorFixture(t, 50, generatingJob())
	seedTemplates(f.templates, false)
	seedSessions(f)

	require.NoError(t, f.service.Generate(context.Background(), "job-1"))

	require.Len(t, f.documents.docs, 4)
	for _, doc := range f.documents.docs {
		assert.Equal(t, models.DocumentStatusOK, doc.Status, "type %s", doc.Type)
		assert.Equal(t, 1, doc.Attempt)
		require.NotNil(t, doc.Path)
	}
	assert.Equal(t, models.StageCompleted, f.jobStore.jobsByID["job-1"].Stage)
}

func TestGenerateMissingRateFailsOnlyInvoice(t *testing.T) {
	f := newGeneratorFixture(t, 0, generatingJob())
	seedTemplates(f.templates, false)
	seedSessions(f)

	require.NoError(t, f.service.Generate(context.Background(), "job-1"))

	require.Len(t, f.documents.docs, 4)
	failures := 0
	for _, doc := range f.documents.docs {
		if doc.Status == models.DocumentStatusFailed {
			failures++
			assert.Equal(t, models.DocTypeInvoice, doc.Type)
			require.NotNil(t, doc.Reason)
			assert.Contains(t, *doc.Reason, "rate")
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, models.StageCompleted, f.jobStore.jobsByID["job-1"].Stage)
}

func TestGenerateInvoiceUsesTemplateRateDefault(t *testing.T) {
	f := newGeneratorFixture(t, 0, generatingJob())
	seedTemplates(f.templates, true)
	seedSessions(f)

	require.NoError(t, f.service.Generate(context.Background(), "job-1"))

	for _, doc := range f.documents.docs {
		assert.Equal(t, models.DocumentStatusOK, doc.Status, "type %s", doc.Type)
	}
	assert.Equal(t, models.StageCompleted, f.jobStore.jobsByID["job-1"].Stage)
}

func TestGenerateFailsJobWhenEveryDocumentFails(t *testing.T) {
	f := newGeneratorFixture(t, 50, generatingJob())
	seedSessions(f)

	require.NoError(t, f.service.Generate(context.Background(), "job-1"))

	require.Len(t, f.documents.docs, 4)
	for _, doc := range f.documents.docs {
		assert.Equal(t, models.DocumentStatusFailed, doc.Status)
		require.NotNil(t, doc.Reason)
		assert.Contains(t, *doc.Reason, "no default template")
	}
	assert.Equal(t, models.StageFailed, f.jobStore.jobsByID["job-1"].Stage)
}

func TestGenerateSkipsJobOutsideGeneratingStage(t *testing.T) {
	f := newGeneratorFixture(t, 50, &models.Job{ID: "job-1", Stage: models.StageClean})
	seedTemplates(f.templates, false)

	require.NoError(t, f.service.Generate(context.Background(), "job-1"))
	assert.Empty(t, f.documents.docs)
	assert.Equal(t, models.StageClean, f.jobStore.jobsByID["job-1"].Stage)
}

func TestGenerateNumbersRetryAttempts(t *testing.T) {
	f := newGeneratorFixture(t, 50, generatingJob())
	seedTemplates(f.templates, false)
	seedSessions(f)

	require.NoError(t, f.service.Generate(context.Background(), "job-1"))
	f.jobStore.jobsByID["job-1"].Stage = models.StageGenerating
	require.NoError(t, f.service.Generate(context.Background(), "job-1"))

	require.Len(t, f.documents.docs, 8)
	assert.Equal(t, 2, f.documents.docs[7].Attempt)
}

func TestListDocumentsSignsSuccessfulOnes(t *testing.T) {
	f := newGeneratorFixture(t, 50, generatingJob())
	seedTemplates(f.templates, false)
	seedSessions(f)
	require.NoError(t, f.service.Generate(context.Background(), "job-1"))

	docs, err := f.service.ListDocuments(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, docs, 4)
	for _, doc := range docs {
		require.NotNil(t, doc.DownloadURL)
		assert.Contains(t, *doc.DownloadURL, "token=")
	}
}

func TestOpenDownloadRejectsTamperedToken(t *testing.T) {
	f := newGeneratorFixture(t, 50, generatingJob())
	_, _, err := f.service.OpenDownload("job-1.123.abc.badsignature")
	require.Error(t, err)
}

func TestOpenDownloadServesStoredArtifact(t *testing.T) {
	f := newGeneratorFixture(t, 50, generatingJob())
	seedTemplates(f.templates, false)
	seedSessions(f)
	require.NoError(t, f.service.Generate(context.Background(), "job-1"))

	docs, err := f.service.ListDocuments(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	token := (*docs[0].DownloadURL)[len("/documents/download?token="):]
	file, name, err := f.service.OpenDownload(token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	assert.NotEmpty(t, name)
}
