package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-invoicing-api/internal/dto"
	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	"github.com/noah-isme/tutor-invoicing-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
	"github.com/noah-isme/tutor-invoicing-api/pkg/jobs"
)

// JobStore abstracts job persistence.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter models.JobFilter) ([]models.Job, int, error)
	UpdateStage(ctx context.Context, id string, stage models.JobStage) error
	CountByStage(ctx context.Context) ([]models.JobStageCount, error)
}

// RecordStore abstracts normalized record persistence.
type RecordStore interface {
	BulkInsert(ctx context.Context, records []models.Record) error
	ListByJob(ctx context.Context, jobID string, source *models.RecordSource) ([]models.Record, error)
}

// IssueStore abstracts validation finding persistence.
type IssueStore interface {
	BulkInsert(ctx context.Context, issues []models.Issue) error
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	ListByJob(ctx context.Context, jobID string, latestPassOnly bool) ([]models.Issue, error)
	LatestPass(ctx context.Context, jobID string) (int, error)
	CountUnresolvedErrors(ctx context.Context, jobID string) (int, error)
	Resolve(ctx context.Context, id, resolution string, resolvedAt time.Time) (int64, error)
}

// ContractStore abstracts read access to synced contract windows.
type ContractStore interface {
	ListActiveForStudents(ctx context.Context, studentIDs []string) ([]models.ContractPeriod, error)
}

// DocumentCounter exposes the aggregate document count for dashboards.
type DocumentCounter interface {
	CountAll(ctx context.Context) (int, error)
}

// SummaryCache abstracts the Redis-backed cache.
type SummaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Enqueuer pushes background work onto the generation queue.
type Enqueuer interface {
	Enqueue(job jobs.Job) error
}

const (
	summaryCacheKeyFmt   = "pipeline:summary:%s"
	statsCacheKey        = "pipeline:stats"
	generateDocumentsJob = "generate_documents"
)

// jobLocks hands out one mutex per job so that validation, resolution
// and proceed calls against the same job serialize while different jobs
// run concurrently. Entries are never evicted; job volume is monthly.
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *jobLocks) forJob(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	return lock
}

// PipelineService drives the invoicing workflow from raw row ingestion
// through validation and issue resolution up to the generation handoff.
type PipelineService struct {
	jobStore  JobStore
	records   RecordStore
	issues    IssueStore
	contracts ContractStore
	documents DocumentCounter
	cache     SummaryCache
	queue     Enqueuer
	engine    *RuleEngine
	metrics   *MetricsService
	cfg       config.PipelineConfig
	validate  *validator.Validate
	logger    *zap.Logger
	locks     *jobLocks
}

// NewPipelineService wires the workflow service.
func NewPipelineService(
	jobStore JobStore,
	records RecordStore,
	issues IssueStore,
	contracts ContractStore,
	documents DocumentCounter,
	cache SummaryCache,
	queue Enqueuer,
	engine *RuleEngine,
	metrics *MetricsService,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		jobStore:  jobStore,
		records:   records,
		issues:    issues,
		contracts: contracts,
		documents: documents,
		cache:     cache,
		queue:     queue,
		engine:    engine,
		metrics:   metrics,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    logger,
		locks:     newJobLocks(),
	}
}

// Ingest normalizes both source sheets, creates the job and persists the
// surviving records. Malformed rows are reported back, never stored.
func (s *PipelineService) Ingest(ctx context.Context, userID string, req dto.IngestJobRequest) (*dto.IngestJobResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ingest payload")
	}

	payroll, payrollErrs := NormalizeRows(req.PayrollRows, models.SourcePayroll)
	feedback, feedbackErrs := NormalizeRows(req.FeedbackRows, models.SourceFeedback)

	rowErrors := make([]models.RowError, 0, len(payrollErrs)+len(feedbackErrs))
	rowErrors = append(rowErrors, payrollErrs...)
	rowErrors = append(rowErrors, feedbackErrs...)

	if len(payroll)+len(feedback) == 0 {
		return nil, appErrors.Clone(appErrors.ErrMalformedRecord, "no usable rows in either source sheet")
	}

	job := &models.Job{
		Month:     req.Month,
		Year:      req.Year,
		CreatedBy: userID,
	}
	if err := s.jobStore.Create(ctx, job); err != nil {
		return nil, err
	}

	all := append(payroll, feedback...)
	for i := range all {
		all[i].JobID = job.ID
	}
	if err := s.records.BulkInsert(ctx, all); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx)
	s.metrics.RecordStageTransition(job.Stage)
	s.logger.Info("job ingested",
		zap.String("job_id", job.ID),
		zap.Int("records", len(all)),
		zap.Int("row_errors", len(rowErrors)),
	)

	return &dto.IngestJobResponse{
		ID:        job.ID,
		Stage:     job.Stage,
		Records:   len(all),
		RowErrors: rowErrors,
	}, nil
}

// Validate runs a fresh rule-engine pass over the job's records. The job
// lands in awaiting_resolution when the pass produced error findings and
// in clean otherwise. An engine failure leaves the stage untouched.
func (s *PipelineService) Validate(ctx context.Context, jobID string) (*dto.ValidateJobResponse, error) {
	lock := s.locks.forJob(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Stage.CanTransition(models.StageValidating) && job.Stage != models.StageValidating {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot validate job in stage %s", job.Stage))
	}

	payrollSource := models.SourcePayroll
	feedbackSource := models.SourceFeedback
	payroll, err := s.records.ListByJob(ctx, jobID, &payrollSource)
	if err != nil {
		return nil, err
	}
	feedback, err := s.records.ListByJob(ctx, jobID, &feedbackSource)
	if err != nil {
		return nil, err
	}

	contracts, err := s.contracts.ListActiveForStudents(ctx, studentIDs(payroll, feedback))
	if err != nil {
		return nil, err
	}

	findings, err := s.engine.Evaluate(payroll, feedback, contracts)
	if err != nil {
		s.logger.Warn("validation pass aborted", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}

	pass, err := s.issues.LatestPass(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pass++
	for i := range findings {
		findings[i].JobID = jobID
		findings[i].Pass = pass
	}
	if err := s.issues.BulkInsert(ctx, findings); err != nil {
		return nil, err
	}

	outcome := models.StageClean
	for _, issue := range findings {
		if issue.Severity == models.SeverityError {
			outcome = models.StageAwaitingResolution
			break
		}
	}

	if job.Stage != models.StageValidating {
		if err := s.jobStore.UpdateStage(ctx, jobID, models.StageValidating); err != nil {
			return nil, err
		}
	}
	if err := s.jobStore.UpdateStage(ctx, jobID, outcome); err != nil {
		return nil, err
	}

	s.invalidateJob(ctx, jobID)
	s.metrics.RecordIssues(findings)
	s.metrics.RecordStageTransition(outcome)
	s.logger.Info("validation pass completed",
		zap.String("job_id", jobID),
		zap.Int("pass", pass),
		zap.Int("issues", len(findings)),
		zap.String("stage", string(outcome)),
	)

	return &dto.ValidateJobResponse{JobID: jobID, Stage: outcome, Issues: findings}, nil
}

// Resolve records a manual override against one finding. Once the last
// blocking error of the latest pass is resolved the job moves to clean.
func (s *PipelineService) Resolve(ctx context.Context, jobID, issueID string, req dto.ResolveIssueRequest) (*dto.ResolveIssueResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "resolution text is required")
	}

	lock := s.locks.forJob(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrIssueNotFound
		}
		return nil, err
	}
	if issue.JobID != jobID {
		return nil, appErrors.ErrIssueNotFound
	}
	if issue.Status == models.IssueStatusResolved {
		return nil, appErrors.ErrIssueAlreadyResolved
	}

	resolvedAt := time.Now().UTC()
	affected, err := s.issues.Resolve(ctx, issueID, req.Resolution, resolvedAt)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, appErrors.ErrIssueAlreadyResolved
	}

	issue.Status = models.IssueStatusResolved
	issue.Resolution = &req.Resolution
	issue.ResolvedAt = &resolvedAt

	stage := job.Stage
	if stage == models.StageAwaitingResolution {
		unresolved, err := s.issues.CountUnresolvedErrors(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if unresolved == 0 {
			if err := s.jobStore.UpdateStage(ctx, jobID, models.StageClean); err != nil {
				return nil, err
			}
			stage = models.StageClean
			s.metrics.RecordStageTransition(stage)
		}
	}

	s.invalidateJob(ctx, jobID)
	s.logger.Info("issue resolved",
		zap.String("job_id", jobID),
		zap.String("issue_id", issueID),
		zap.String("stage", string(stage)),
	)

	return &dto.ResolveIssueResponse{Issue: *issue, JobStage: stage}, nil
}

// Proceed moves a clean job into generation and enqueues the document
// fan-out. Jobs still blocked by unresolved errors are refused.
func (s *PipelineService) Proceed(ctx context.Context, jobID string) (*dto.ProceedResponse, error) {
	lock := s.locks.forJob(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Stage {
	case models.StageClean:
		// fall through to generation
	case models.StageAwaitingResolution:
		unresolved, err := s.issues.CountUnresolvedErrors(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if unresolved > 0 {
			return nil, appErrors.Clone(appErrors.ErrBlockedByErrors,
				fmt.Sprintf("%d unresolved error issues block generation", unresolved))
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot proceed from stage %s", job.Stage))
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot proceed from stage %s", job.Stage))
	}

	if err := s.jobStore.UpdateStage(ctx, jobID, models.StageGenerating); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: generateDocumentsJob, Payload: jobID}); err != nil {
		s.logger.Error("failed to enqueue generation", zap.String("job_id", jobID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start generation")
	}

	s.invalidateJob(ctx, jobID)
	s.metrics.RecordStageTransition(models.StageGenerating)
	s.logger.Info("generation started", zap.String("job_id", jobID))

	return &dto.ProceedResponse{JobID: jobID, Stage: models.StageGenerating}, nil
}

// GetJob returns job metadata for polling.
func (s *PipelineService) GetJob(ctx context.Context, jobID string) (*dto.JobResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	resp := toJobResponse(*job)
	return &resp, nil
}

// ListJobs returns a page of jobs matching the query.
func (s *PipelineService) ListJobs(ctx context.Context, query dto.JobQuery) ([]dto.JobResponse, *models.Pagination, error) {
	filter := models.JobFilter{Page: query.Page, PageSize: query.PageSize}
	if query.Stage != "" {
		stage := models.JobStage(query.Stage)
		filter.Stage = &stage
	}

	jobsOut, total, err := s.jobStore.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	responses := make([]dto.JobResponse, 0, len(jobsOut))
	for _, job := range jobsOut {
		responses = append(responses, toJobResponse(job))
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return responses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ListIssues returns the latest validation pass of a job, optionally
// filtered by severity, status or category.
func (s *PipelineService) ListIssues(ctx context.Context, jobID string, query dto.IssueQuery) ([]models.Issue, error) {
	if _, err := s.getJob(ctx, jobID); err != nil {
		return nil, err
	}

	issues, err := s.issues.ListByJob(ctx, jobID, true)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if query.Severity != "" && string(issue.Severity) != query.Severity {
			continue
		}
		if query.Status != "" && string(issue.Status) != query.Status {
			continue
		}
		if query.Category != "" && string(issue.Category) != query.Category {
			continue
		}
		filtered = append(filtered, issue)
	}
	return filtered, nil
}

// Summary aggregates the latest pass findings of a job, served from the
// cache when fresh.
func (s *PipelineService) Summary(ctx context.Context, jobID string) (*models.IssueSummary, error) {
	key := fmt.Sprintf(summaryCacheKeyFmt, jobID)
	var cached models.IssueSummary
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	if _, err := s.getJob(ctx, jobID); err != nil {
		return nil, err
	}

	issues, err := s.issues.ListByJob(ctx, jobID, true)
	if err != nil {
		return nil, err
	}

	summary := models.IssueSummary{ByCategory: make(map[models.IssueCategory]int)}
	for _, issue := range issues {
		summary.Total++
		summary.ByCategory[issue.Category]++
		if issue.Severity == models.SeverityError {
			summary.Errors++
		} else {
			summary.Warnings++
		}
		if issue.Status == models.IssueStatusResolved {
			summary.Resolved++
		} else {
			summary.Unresolved++
		}
	}

	if err := s.cache.Set(ctx, key, summary, s.cfg.SummaryCacheTTL); err != nil {
		s.logger.Warn("failed to cache summary", zap.String("job_id", jobID), zap.Error(err))
	}
	return &summary, nil
}

// Stats aggregates pipeline-wide counts for the dashboard.
func (s *PipelineService) Stats(ctx context.Context) (*dto.PipelineStats, error) {
	var cached dto.PipelineStats
	if err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil {
		return &cached, nil
	}

	counts, err := s.jobStore.CountByStage(ctx)
	if err != nil {
		return nil, err
	}
	totalDocs, err := s.documents.CountAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := dto.PipelineStats{JobsByStage: counts, TotalDocuments: totalDocs}
	for _, c := range counts {
		switch c.Stage {
		case models.StageCompleted:
			stats.CompletedJobs += c.Count
		case models.StageFailed:
			stats.FailedJobs += c.Count
		default:
			stats.ActiveJobs += c.Count
		}
	}

	if err := s.cache.Set(ctx, statsCacheKey, stats, s.cfg.SummaryCacheTTL); err != nil {
		s.logger.Warn("failed to cache stats", zap.Error(err))
	}
	return &stats, nil
}

// StageCatalog describes the pipeline stages for dashboard display.
func (s *PipelineService) StageCatalog() []dto.StageCatalogEntry {
	return []dto.StageCatalogEntry{
		{ID: string(models.StageIngested), Name: "Ingested", Description: "Source rows normalized and stored"},
		{ID: string(models.StageValidating), Name: "Validating", Description: "Business rules are being evaluated"},
		{ID: string(models.StageAwaitingResolution), Name: "Awaiting Resolution", Description: "Error findings need manual overrides"},
		{ID: string(models.StageClean), Name: "Clean", Description: "No blocking findings, ready for generation"},
		{ID: string(models.StageGenerating), Name: "Generating", Description: "Invoice documents are being produced"},
		{ID: string(models.StageCompleted), Name: "Completed", Description: "Documents generated"},
		{ID: string(models.StageFailed), Name: "Failed", Description: "Every document generator failed"},
	}
}

func (s *PipelineService) getJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.jobStore.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, err
	}
	return job, nil
}

func (s *PipelineService) invalidateJob(ctx context.Context, jobID string) {
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf(summaryCacheKeyFmt, jobID)); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.String("job_id", jobID), zap.Error(err))
	}
	s.invalidateStats(ctx)
}

func (s *PipelineService) invalidateStats(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, statsCacheKey); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

func studentIDs(payroll, feedback []models.Record) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, rec := range payroll {
		if _, ok := seen[rec.StudentID]; !ok {
			seen[rec.StudentID] = struct{}{}
			ids = append(ids, rec.StudentID)
		}
	}
	for _, rec := range feedback {
		if _, ok := seen[rec.StudentID]; !ok {
			seen[rec.StudentID] = struct{}{}
			ids = append(ids, rec.StudentID)
		}
	}
	return ids
}

func toJobResponse(job models.Job) dto.JobResponse {
	resp := dto.JobResponse{
		ID:        job.ID,
		Month:     job.Month,
		Year:      job.Year,
		Stage:     job.Stage,
		CreatedBy: job.CreatedBy,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}
