package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-invoicing-api/internal/dto"
	"github.com/noah-isme/tutor-invoicing-api/internal/service"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
	"github.com/noah-isme/tutor-invoicing-api/pkg/response"
)

// IssueHandler exposes validation finding endpoints.
type IssueHandler struct {
	pipeline *service.PipelineService
}

// NewIssueHandler constructs handler.
func NewIssueHandler(pipeline *service.PipelineService) *IssueHandler {
	return &IssueHandler{pipeline: pipeline}
}

// List godoc
// @Summary List the latest validation findings of a job
// @Tags Issues
// @Produce json
// @Param id path string true "Job ID"
// @Param severity query string false "Severity filter"
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	query := dto.IssueQuery{
		Severity: c.Query("severity"),
		Status:   c.Query("status"),
		Category: c.Query("category"),
	}
	issues, err := h.pipeline.ListIssues(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, nil)
}

// Resolve godoc
// @Summary Resolve one validation finding
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param issueId path string true "Issue ID"
// @Param payload body dto.ResolveIssueRequest true "Resolution"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/issues/{issueId}/resolve [post]
func (h *IssueHandler) Resolve(c *gin.Context) {
	var req dto.ResolveIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload"))
		return
	}
	result, err := h.pipeline.Resolve(c.Request.Context(), c.Param("id"), c.Param("issueId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Summary godoc
// @Summary Aggregated findings of a job
// @Tags Issues
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/issues/summary [get]
func (h *IssueHandler) Summary(c *gin.Context) {
	summary, err := h.pipeline.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
