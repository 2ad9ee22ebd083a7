package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-invoicing-api/internal/service"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
	"github.com/noah-isme/tutor-invoicing-api/pkg/response"
)

// DocumentHandler exposes generated artifact endpoints.
type DocumentHandler struct {
	generator *service.GeneratorService
}

// NewDocumentHandler constructs handler.
func NewDocumentHandler(generator *service.GeneratorService) *DocumentHandler {
	return &DocumentHandler{generator: generator}
}

// List godoc
// @Summary List generated documents of a job
// @Tags Documents
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.generator.ListDocuments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Download godoc
// @Summary Download a generated document via signed token
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}

	file, name, err := h.generator.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	contentType := "application/octet-stream"
	switch filepath.Ext(name) {
	case ".pdf":
		contentType = "application/pdf"
	case ".csv":
		contentType = "text/csv"
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", contentType)
	http.ServeContent(c.Writer, c.Request, name, fileModTime(file), file)
}

func fileModTime(file *os.File) time.Time {
	info, err := file.Stat()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
