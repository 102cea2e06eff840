package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/cv-forge/internal/api/dto"
	"github.com/cuongbtq/cv-forge/internal/quota"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AccountHandler serves per-identity views and the template catalog
type AccountHandler struct {
	*Dependencies
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(deps *Dependencies) *AccountHandler {
	return &AccountHandler{Dependencies: deps}
}

// History handles GET /api/v1/history
func (h *AccountHandler) History(c *gin.Context) {
	id := identity(c)
	if !requireUser(c, id) {
		return
	}

	since := h.now().Add(-h.HistoryWindow)
	entries, err := h.Jobs.ListRecent(c.Request.Context(), id.UserID, since, h.HistoryLimit)
	if err != nil {
		h.Logger.Error("Failed to list history", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to list history")
		return
	}

	c.JSON(http.StatusOK, dto.NewHistory(entries))
}

// ExportHistory handles GET /api/v1/history/export
func (h *AccountHandler) ExportHistory(c *gin.Context) {
	id := identity(c)
	if !requireUser(c, id) {
		return
	}

	data, err := h.Exporter.ExportXLSX(c.Request.Context(), id.UserID)
	if err != nil {
		h.Logger.Error("Failed to export history", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to export history")
		return
	}

	filename := fmt.Sprintf("cv-history-%s.xlsx", h.now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Stats handles GET /api/v1/stats
func (h *AccountHandler) Stats(c *gin.Context) {
	id := identity(c)
	if !requireUser(c, id) {
		return
	}

	ctx := c.Request.Context()
	stats, err := h.Jobs.Stats(ctx, id.UserID, quota.DayStart(h.now()))
	if err != nil {
		h.Logger.Error("Failed to get stats", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	remaining, err := h.Quota.Remaining(ctx, id)
	if err != nil {
		h.Logger.Error("Failed to get remaining quota", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	c.JSON(http.StatusOK, dto.StatsResponse{
		Total:      stats.Total,
		Successful: stats.Successful,
		Today:      stats.Today,
		Remaining:  remaining,
	})
}

// Templates handles GET /api/v1/templates
func (h *AccountHandler) Templates(c *gin.Context) {
	templates, err := h.Catalog.List(c.Request.Context())
	if err != nil {
		h.Logger.Error("Failed to list templates", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	c.JSON(http.StatusOK, dto.TemplatesResponse{Templates: templates})
}
