package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	"github.com/noah-isme/tutor-invoicing-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
	"github.com/noah-isme/tutor-invoicing-api/pkg/storage"
	pkgtemplate "github.com/noah-isme/tutor-invoicing-api/pkg/template"
)

// DocumentStore abstracts artifact persistence.
type DocumentStore interface {
	BulkInsert(ctx context.Context, docs []models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByJob(ctx context.Context, jobID string, docType *models.DocumentType) ([]models.Document, error)
	LatestAttempt(ctx context.Context, jobID string) (int, error)
	CountAll(ctx context.Context) (int, error)
}

// ArtifactStorage abstracts the document file store.
type ArtifactStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

// GeneratorService fans out document generation for a job. The four
// generators run concurrently; one failing never aborts the others, and
// the job only fails outright when every document does.
type GeneratorService struct {
	jobStore   JobStore
	records    RecordStore
	documents  DocumentStore
	templates  TemplateStore
	storage    ArtifactStorage
	signer     *storage.SignedURLSigner
	cache      SummaryCache
	metrics    *MetricsService
	generators []DocumentGenerator
	rate       float64
	timeout    time.Duration
	logger     *zap.Logger
}

// NewGeneratorService wires the generation fan-out.
func NewGeneratorService(
	jobStore JobStore,
	records RecordStore,
	documents DocumentStore,
	templates TemplateStore,
	artifacts ArtifactStorage,
	signer *storage.SignedURLSigner,
	cache SummaryCache,
	metrics *MetricsService,
	pipelineCfg config.PipelineConfig,
	documentsCfg config.DocumentsConfig,
	logger *zap.Logger,
) *GeneratorService {
	renderer := pkgtemplate.NewRenderer()
	timeout := documentsCfg.GeneratorTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeneratorService{
		jobStore:  jobStore,
		records:   records,
		documents: documents,
		templates: templates,
		storage:   artifacts,
		signer:    signer,
		cache:     cache,
		metrics:   metrics,
		generators: []DocumentGenerator{
			newAttendanceGenerator(renderer),
			newProgressGenerator(renderer),
			newInvoiceGenerator(renderer),
			newServiceLogGenerator(renderer),
		},
		rate:    pipelineCfg.DefaultHourlyRate,
		timeout: timeout,
		logger:  logger,
	}
}

// Generate produces one attempt of all four documents for a job. It is
// the handler behind the generation queue; a job not in the generating
// stage is skipped rather than retried.
func (s *GeneratorService) Generate(ctx context.Context, jobID string) error {
	job, err := s.jobStore.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job for generation: %w", err)
	}
	if job.Stage != models.StageGenerating {
		s.logger.Warn("skipping generation, job not in generating stage",
			zap.String("job_id", jobID),
			zap.String("stage", string(job.Stage)),
		)
		return nil
	}

	feedbackSource := models.SourceFeedback
	sessions, err := s.records.ListByJob(ctx, jobID, &feedbackSource)
	if err != nil {
		return fmt.Errorf("load sessions for generation: %w", err)
	}

	attempt, err := s.documents.LatestAttempt(ctx, jobID)
	if err != nil {
		return err
	}
	attempt++

	in := generationInput{job: *job, sessions: sessions, rate: s.rate, now: time.Now().UTC()}

	docs := make([]models.Document, len(s.generators))
	var wg sync.WaitGroup
	for i, gen := range s.generators {
		wg.Add(1)
		go func(i int, gen DocumentGenerator) {
			defer wg.Done()
			docs[i] = s.runGenerator(ctx, gen, in, attempt)
		}(i, gen)
	}
	wg.Wait()

	failures := 0
	for _, doc := range docs {
		s.metrics.RecordDocument(doc.Type, doc.Status)
		if doc.Status == models.DocumentStatusFailed {
			failures++
			s.logger.Warn("document generation failed",
				zap.String("job_id", jobID),
				zap.String("type", string(doc.Type)),
				zap.Stringp("reason", doc.Reason),
			)
		}
	}

	if err := s.documents.BulkInsert(ctx, docs); err != nil {
		return fmt.Errorf("persist generated documents: %w", err)
	}

	outcome := models.StageCompleted
	if failures == len(docs) {
		outcome = models.StageFailed
	}
	if err := s.jobStore.UpdateStage(ctx, jobID, outcome); err != nil {
		return err
	}

	if err := s.cache.DeleteByPattern(ctx, statsCacheKey); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
	s.metrics.RecordStageTransition(outcome)
	s.logger.Info("generation attempt finished",
		zap.String("job_id", jobID),
		zap.Int("attempt", attempt),
		zap.Int("failures", failures),
		zap.String("stage", string(outcome)),
	)
	return nil
}

// runGenerator executes one generator under the per-document timeout.
// Panics and timeouts become failed documents, never a crashed attempt.
func (s *GeneratorService) runGenerator(ctx context.Context, gen DocumentGenerator, in generationInput, attempt int) models.Document {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan models.Document, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failedDocument(in.job.ID, gen.Type(), attempt, fmt.Sprintf("generator panic: %v", r))
			}
		}()
		done <- s.generateOne(ctx, gen, in, attempt)
	}()

	select {
	case doc := <-done:
		return doc
	case <-ctx.Done():
		return failedDocument(in.job.ID, gen.Type(), attempt, "generation timed out")
	}
}

func (s *GeneratorService) generateOne(ctx context.Context, gen DocumentGenerator, in generationInput, attempt int) models.Document {
	tpl, err := s.templates.GetDefaultByType(ctx, gen.Type())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return failedDocument(in.job.ID, gen.Type(), attempt, fmt.Sprintf("no default template for %s", gen.Type()))
		}
		return failedDocument(in.job.ID, gen.Type(), attempt, err.Error())
	}

	content, err := gen.Build(tpl, in)
	if err != nil {
		return failedDocument(in.job.ID, gen.Type(), attempt, appErrors.FromError(err).Message)
	}

	data, err := gen.Converter().Convert(content)
	if err != nil {
		reason := appErrors.Clone(appErrors.ErrConversionFailed, fmt.Sprintf("convert %s: %v", gen.Type(), err))
		return failedDocument(in.job.ID, gen.Type(), attempt, reason.Message)
	}

	filename := filepath.Join(in.job.ID, fmt.Sprintf("%s_%d.%s", gen.Type(), attempt, gen.Converter().Extension()))
	path, err := s.storage.Save(filename, data)
	if err != nil {
		return failedDocument(in.job.ID, gen.Type(), attempt, fmt.Sprintf("store %s: %v", gen.Type(), err))
	}

	return models.Document{
		JobID:       in.job.ID,
		Type:        gen.Type(),
		Status:      models.DocumentStatusOK,
		Path:        &path,
		Attempt:     attempt,
		GeneratedAt: in.now,
	}
}

// ListDocuments returns a job's documents with signed download links for
// the successful ones.
func (s *GeneratorService) ListDocuments(ctx context.Context, jobID string) ([]models.Document, error) {
	if _, err := s.jobStore.GetByID(ctx, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, err
	}

	docs, err := s.documents.ListByJob(ctx, jobID, nil)
	if err != nil {
		return nil, err
	}

	for i := range docs {
		if docs[i].Status != models.DocumentStatusOK || docs[i].Path == nil {
			continue
		}
		token, _, err := s.signer.Generate(jobID, *docs[i].Path)
		if err != nil {
			s.logger.Warn("failed to sign download link",
				zap.String("document_id", docs[i].ID),
				zap.Error(err),
			)
			continue
		}
		url := "/documents/download?token=" + token
		docs[i].DownloadURL = &url
	}
	return docs, nil
}

// OpenDownload validates a signed token and opens the referenced artifact.
func (s *GeneratorService) OpenDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document file not found")
	}
	return file, filepath.Base(relPath), nil
}

func failedDocument(jobID string, docType models.DocumentType, attempt int, reason string) models.Document {
	return models.Document{
		JobID:       jobID,
		Type:        docType,
		Status:      models.DocumentStatusFailed,
		Reason:      &reason,
		Attempt:     attempt,
		GeneratedAt: time.Now().UTC(),
	}
}
