package dto

import (
	"encoding/json"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

type GenerateRequest struct {
	Prompt      string `json:"prompt" binding:"required"`
	TemplateID  string `json:"template_id"`
	Language    string `json:"language" binding:"omitempty,oneof=ar en"`
	ProjectName string `json:"project_name" binding:"max=200"`
}

type RerenderRequest struct {
	Data       map[string]any `json:"data" binding:"required"`
	TemplateID string         `json:"template_id"`
	Language   string         `json:"language" binding:"omitempty,oneof=ar en"`
}

type AcceptedResponse struct {
	ResumeID string `json:"resume_id"`
	Status   string `json:"status"`
	IsGuest  bool   `json:"is_guest"`
}

type ImportResponse struct {
	AcceptedResponse
	Data            domain.Document `json:"data"`
	MissingCritical []string        `json:"missing_critical"`
	Warnings        []string        `json:"warnings"`
}

// CVDataResponse is the structured payload the editor loads before a rerender.
type CVDataResponse struct {
	ResumeID    string          `json:"resume_id"`
	TemplateID  string          `json:"template_id"`
	Language    string          `json:"language,omitempty"`
	Status      string          `json:"status"`
	ArtifactURL string          `json:"artifact_url,omitempty"`
	Data        json.RawMessage `json:"data"`
}

type ErrorResponse struct {
	Error        string `json:"error"`
	Reason       string `json:"reason,omitempty"`
	RequiresAuth bool   `json:"requires_auth,omitempty"`
}
