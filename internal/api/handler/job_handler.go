package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/cv-forge/internal/api/dto"
	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	*Dependencies
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{Dependencies: deps}
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the status projection of a job. Guest jobs are readable by id;
// owned jobs only by their owner.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		respondError(c, http.StatusBadRequest, "job_id must be a valid UUID")
		return
	}

	job, err := h.Jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "job not found")
			return
		}
		h.Logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	id := identity(c)
	if job.OwnerID != nil && *job.OwnerID != id.UserID {
		respondError(c, http.StatusNotFound, "job not found")
		return
	}

	c.JSON(http.StatusOK, dto.NewJobStatus(job))
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a queued or processing job; the worker stops at its next stage boundary
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := identity(c)
	if !requireUser(c, id) {
		return
	}

	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		respondError(c, http.StatusBadRequest, "job_id must be a valid UUID")
		return
	}

	err := h.Jobs.CancelJob(c.Request.Context(), jobID, id.UserID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, domain.ErrJobTerminal):
		respondError(c, http.StatusConflict, "job already finished")
		return
	default:
		h.Logger.Error("Failed to cancel job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to cancel job")
		return
	}

	h.Logger.Info("Job cancelled", slog.String("job_id", jobID))
	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": domain.JobStatusCancelled,
	})
}
