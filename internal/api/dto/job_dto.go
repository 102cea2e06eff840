package dto

import (
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

// JobStatusResponse is the read-only status projection of a job.
type JobStatusResponse struct {
	JobID           string   `json:"job_id"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
	ArtifactURL     string   `json:"artifact_url,omitempty"`
	CompletedAt     string   `json:"completed_at,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// NewJobStatus projects only what a poller may see. Logs, stage internals and
// error classes stay server-side.
func NewJobStatus(job *domain.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	switch job.Status {
	case domain.JobStatusSuccess:
		resp.ArtifactURL = job.ArtifactURL
		if job.CompletedAt != nil {
			resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
		}
		if job.StartedAt != nil && job.CompletedAt != nil {
			secs := job.Duration().Seconds()
			resp.DurationSeconds = &secs
		}
	case domain.JobStatusFailed:
		resp.ErrorMessage = job.ErrorMessage
	}
	return resp
}

type HistoryItem struct {
	JobID        string `json:"job_id"`
	ProjectName  string `json:"project_name"`
	TemplateName string `json:"template_name"`
	Status       string `json:"status"`
	ArtifactURL  string `json:"artifact_url,omitempty"`
	CreatedAt    string `json:"created_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
}

func NewHistory(entries []domain.HistoryEntry) HistoryResponse {
	items := make([]HistoryItem, len(entries))
	for i, e := range entries {
		items[i] = HistoryItem{
			JobID:        e.JobID,
			ProjectName:  e.ProjectName,
			TemplateName: e.TemplateName,
			Status:       e.Status,
			ArtifactURL:  e.ArtifactURL,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		}
		if e.CompletedAt != nil {
			items[i].CompletedAt = e.CompletedAt.Format(time.RFC3339)
		}
	}
	return HistoryResponse{Items: items}
}

type StatsResponse struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Today      int `json:"today"`
	Remaining  int `json:"remaining"`
}

type TemplatesResponse struct {
	Templates []domain.Template `json:"templates"`
}
