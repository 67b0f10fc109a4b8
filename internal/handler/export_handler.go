package handler

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akademi/akademi-api/internal/service"
	"github.com/akademi/akademi-api/pkg/response"
)

// ExportHandler exposes roster downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Roster godoc
// @Summary Download the class roster
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" default(pdf)
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /classes/{id}/roster [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "pdf")))

	result, err := h.exports.Roster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(200, result.ContentType, result.Data)
}
