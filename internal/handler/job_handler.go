package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-invoicing-api/internal/dto"
	"github.com/noah-isme/tutor-invoicing-api/internal/service"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
	"github.com/noah-isme/tutor-invoicing-api/pkg/response"
)

// JobHandler exposes the pipeline job endpoints.
type JobHandler struct {
	pipeline *service.PipelineService
}

// NewJobHandler constructs handler.
func NewJobHandler(pipeline *service.PipelineService) *JobHandler {
	return &JobHandler{pipeline: pipeline}
}

// Ingest godoc
// @Summary Create a job from extracted source rows
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body dto.IngestJobRequest true "Source rows"
// @Success 201 {object} response.Envelope
// @Router /jobs [post]
func (h *JobHandler) Ingest(c *gin.Context) {
	var req dto.IngestJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ingest payload"))
		return
	}

	userID := ""
	if claims := claimsFromContext(c); claims != nil {
		userID = claims.UserID
	}

	result, err := h.pipeline.Ingest(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Get godoc
// @Summary Job metadata
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.pipeline.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// List godoc
// @Summary List jobs
// @Tags Jobs
// @Produce json
// @Param stage query string false "Stage filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	query := dto.JobQuery{Stage: c.Query("stage")}
	query.Page, _ = strconv.Atoi(c.Query("page"))
	query.PageSize, _ = strconv.Atoi(c.Query("pageSize"))

	jobs, pagination, err := h.pipeline.ListJobs(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, pagination)
}

// Validate godoc
// @Summary Run a validation pass
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/validate [post]
func (h *JobHandler) Validate(c *gin.Context) {
	result, err := h.pipeline.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Proceed godoc
// @Summary Start document generation for a clean job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} response.Envelope
// @Router /jobs/{id}/proceed [post]
func (h *JobHandler) Proceed(c *gin.Context) {
	result, err := h.pipeline.Proceed(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// Stats godoc
// @Summary Pipeline-wide job statistics
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/stats [get]
func (h *JobHandler) Stats(c *gin.Context) {
	stats, err := h.pipeline.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Stages godoc
// @Summary Pipeline stage catalogue
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs/stages [get]
func (h *JobHandler) Stages(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.pipeline.StageCatalog(), nil)
}
