package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutor-invoicing-api/api/swagger"
	"github.com/noah-isme/tutor-invoicing-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tutor-invoicing-api/internal/middleware"
	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	"github.com/noah-isme/tutor-invoicing-api/internal/repository"
	"github.com/noah-isme/tutor-invoicing-api/internal/service"
	"github.com/noah-isme/tutor-invoicing-api/pkg/cache"
	"github.com/noah-isme/tutor-invoicing-api/pkg/config"
	"github.com/noah-isme/tutor-invoicing-api/pkg/database"
	"github.com/noah-isme/tutor-invoicing-api/pkg/jobs"
	"github.com/noah-isme/tutor-invoicing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-invoicing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-invoicing-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutor-invoicing-api/pkg/storage"
)

// @title Tutor Invoicing API
// @version 0.1.0
// @description Monthly invoicing pipeline for the tutoring agency
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	artifacts, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	jobRepo := repository.NewJobRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	contractRepo := repository.NewContractRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	templateSvc := service.NewTemplateService(templateRepo, logr)
	generatorSvc := service.NewGeneratorService(
		jobRepo, recordRepo, documentRepo, templateRepo,
		artifacts, signer, cacheRepo, metricsSvc,
		cfg.Pipeline, cfg.Documents, logr,
	)

	queue := jobs.NewQueue("generation", func(ctx context.Context, job jobs.Job) error {
		jobID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
		}
		return generatorSvc.Generate(ctx, jobID)
	}, jobs.QueueConfig{
		Workers: cfg.Documents.WorkerConcurrency,
		Logger:  logr,
	})

	engine := service.NewRuleEngine(cfg.Pipeline)
	pipelineSvc := service.NewPipelineService(
		jobRepo, recordRepo, issueRepo, contractRepo, documentRepo,
		cacheRepo, queue, engine, metricsSvc, cfg.Pipeline, logr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	requeueInterrupted(ctx, jobRepo, queue, logr)
	go cleanupLoop(ctx, artifacts, cfg.Documents, logr)

	jobHandler := handler.NewJobHandler(pipelineSvc)
	issueHandler := handler.NewIssueHandler(pipelineSvc)
	templateHandler := handler.NewTemplateHandler(templateSvc)
	documentHandler := handler.NewDocumentHandler(generatorSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Download links carry their own HMAC token, no session required.
	api.GET("/documents/download", documentHandler.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(cfg.JWT))

	operators := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleOperator)
	admins := internalmiddleware.RequireRoles(models.RoleAdmin)

	secured.GET("/jobs", operators, jobHandler.List)
	secured.POST("/jobs", operators, jobHandler.Ingest)
	secured.GET("/jobs/stats", operators, jobHandler.Stats)
	secured.GET("/jobs/stages", operators, jobHandler.Stages)
	secured.GET("/jobs/:id", operators, jobHandler.Get)
	secured.POST("/jobs/:id/validate", operators, jobHandler.Validate)
	secured.POST("/jobs/:id/proceed", operators, jobHandler.Proceed)
	secured.GET("/jobs/:id/issues", operators, issueHandler.List)
	secured.GET("/jobs/:id/issues/summary", operators, issueHandler.Summary)
	secured.POST("/jobs/:id/issues/:issueId/resolve", operators, issueHandler.Resolve)
	secured.GET("/jobs/:id/documents", operators, documentHandler.List)

	secured.GET("/templates", operators, templateHandler.List)
	secured.GET("/templates/:id", operators, templateHandler.Get)
	secured.POST("/templates", admins, templateHandler.Create)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}

// requeueInterrupted re-enqueues jobs left in the generating stage by a
// previous process; the in-memory queue loses them on restart.
func requeueInterrupted(ctx context.Context, jobRepo *repository.JobRepository, queue *jobs.Queue, logr *zap.Logger) {
	stage := models.StageGenerating
	stuck, _, err := jobRepo.List(ctx, models.JobFilter{Stage: &stage, PageSize: 100})
	if err != nil {
		logr.Sugar().Warnw("failed to scan interrupted jobs", "error", err)
		return
	}
	for _, job := range stuck {
		if err := queue.Enqueue(jobs.Job{
			ID:      uuid.NewString(),
			Type:    "generate_documents",
			Payload: job.ID,
		}); err != nil {
			logr.Sugar().Warnw("failed to requeue job", "job_id", job.ID, "error", err)
		}
	}
	if len(stuck) > 0 {
		logr.Sugar().Infow("requeued interrupted generation jobs", "count", len(stuck))
	}
}

// cleanupLoop periodically removes artifacts older than the signed URL
// TTL; expired links must not keep pointing at live files.
func cleanupLoop(ctx context.Context, artifacts *storage.LocalStorage, cfg config.DocumentsConfig, logr *zap.Logger) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := artifacts.CleanupOlderThan(cfg.SignedURLTTL)
			if err != nil {
				logr.Sugar().Warnw("document cleanup failed", "error", err)
				continue
			}
			if len(deleted) > 0 {
				logr.Sugar().Infow("document cleanup", "deleted", len(deleted))
			}
		}
	}
}
