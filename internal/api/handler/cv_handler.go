package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/cv-forge/internal/api/dto"
	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/extract"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultProjectName = "Untitled CV"

var pdfMagic = []byte("%PDF-")

// CVHandler admits new résumé jobs
type CVHandler struct {
	*Dependencies
}

// NewCVHandler creates a new CVHandler instance
func NewCVHandler(deps *Dependencies) *CVHandler {
	return &CVHandler{Dependencies: deps}
}

// Generate handles POST /api/v1/cv/generate
// Queues an AI-authored résumé from a free-text prompt
func (h *CVHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("Invalid request body", slog.String("error", err.Error()))
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	prompt := extract.CleanPrompt(req.Prompt)
	if n := utf8.RuneCountInString(prompt); n < h.PromptMin || n > h.PromptMax {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("prompt length must be between %d and %d characters", h.PromptMin, h.PromptMax))
		return
	}

	id := identity(c)
	tmpl, ok := h.resolveTemplate(c, id, req.TemplateID)
	if !ok {
		return
	}
	if !h.admit(c, id) {
		return
	}

	payload, err := json.Marshal(domain.AuthorInput{RawPrompt: prompt, Mode: domain.ModeAuthor})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to create job")
		return
	}

	job, ok := h.submit(c, id, domain.NewJob{
		ProjectName: projectName(req.ProjectName),
		Stage:       domain.StageExtraction,
		Language:    req.Language,
		TemplateID:  tmpl.ID,
		Payload:     payload,
	})
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, accepted(job))
}

// Rerender handles POST /api/v1/cv/:job_id/rerender
// Queues a new job that renders edited structured data, skipping extraction
func (h *CVHandler) Rerender(c *gin.Context) {
	id := identity(c)
	if !requireUser(c, id) {
		return
	}

	parentID := c.Param("job_id")
	if _, err := uuid.Parse(parentID); err != nil {
		respondError(c, http.StatusBadRequest, "job_id must be a valid UUID")
		return
	}

	var req dto.RerenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	parent, err := h.Jobs.GetJobForOwner(c.Request.Context(), parentID, id.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "job not found")
			return
		}
		h.Logger.Error("Failed to get parent job", slog.String("job_id", parentID), slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	templateRef := req.TemplateID
	if templateRef == "" {
		templateRef = parent.TemplateID
	}
	tmpl, ok := h.resolveTemplate(c, id, templateRef)
	if !ok {
		return
	}

	data, err := json.Marshal(req.Data)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid résumé data")
		return
	}
	if err := extract.Validate(tmpl.SchemaName, data); err != nil {
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "résumé data does not match the template", Reason: err.Error()})
		return
	}

	if !h.admit(c, id) {
		return
	}

	language := req.Language
	if language == "" {
		language = parent.Language
	}
	job, ok := h.submit(c, id, domain.NewJob{
		ParentJobID: &parent.ID,
		ProjectID:   parent.ProjectID,
		Stage:       domain.StageRender,
		Language:    language,
		TemplateID:  tmpl.ID,
		Payload:     data,
	})
	if !ok {
		return
	}

	c.JSON(http.StatusAccepted, accepted(job))
}

// GetData handles GET /api/v1/cv/:job_id/data
// Returns the structured résumé behind an owned job so it can be edited and rerendered
func (h *CVHandler) GetData(c *gin.Context) {
	id := identity(c)
	if !requireUser(c, id) {
		return
	}

	jobID := c.Param("job_id")
	if !isUUID(jobID) {
		respondError(c, http.StatusBadRequest, "job_id must be a valid UUID")
		return
	}

	job, err := h.Jobs.GetJobForOwner(c.Request.Context(), jobID, id.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, "job not found")
			return
		}
		h.Logger.Error("Failed to get job data", slog.String("job_id", jobID), slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	// Until extraction runs the payload is the raw prompt, not résumé data.
	if job.Stage == domain.StageExtraction || len(job.Payload) == 0 {
		respondError(c, http.StatusNotFound, "résumé data is not available yet")
		return
	}

	c.JSON(http.StatusOK, dto.CVDataResponse{
		ResumeID:    job.ID,
		TemplateID:  job.TemplateID,
		Language:    job.Language,
		Status:      job.Status,
		ArtifactURL: job.ArtifactURL,
		Data:        job.Payload,
	})
}

// Import handles POST /api/v1/cv/import
// Parses an uploaded PDF résumé and queues a rebuilt copy from the parsed data
func (h *CVHandler) Import(c *gin.Context) {
	id := identity(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "a PDF file is required in the 'file' field")
		return
	}
	defer file.Close()

	pdf, err := io.ReadAll(file)
	if err != nil {
		respondError(c, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") || !bytes.HasPrefix(pdf, pdfMagic) {
		respondError(c, http.StatusBadRequest, "only PDF uploads are supported")
		return
	}

	language := c.PostForm("language")
	if !validLanguage(language) {
		respondError(c, http.StatusBadRequest, "language must be one of: ar, en")
		return
	}

	tmpl, ok := h.resolveTemplate(c, id, c.PostForm("template_id"))
	if !ok {
		return
	}
	if !h.admit(c, id) {
		return
	}

	ctx := c.Request.Context()
	text, err := h.PDF.Text(ctx, pdf)
	if err != nil {
		if errors.Is(err, extract.ErrScannedDocument) {
			respondError(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.Logger.Error("Failed to read PDF text layer", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to read the uploaded PDF")
		return
	}

	doc, err := h.Extractor.Extract(ctx, extract.Request{
		Text:       text,
		Mode:       domain.ModeParse,
		Language:   language,
		SchemaName: tmpl.SchemaName,
	})
	if err != nil {
		h.Logger.Warn("Import extraction failed", slog.String("error", err.Error()))
		respondError(c, http.StatusUnprocessableEntity, domain.PublicMessage(domain.ClassExtraction))
		return
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to create job")
		return
	}

	job, ok := h.submit(c, id, domain.NewJob{
		ProjectName: projectName(strings.TrimSuffix(header.Filename, ".pdf")),
		Stage:       domain.StageRender,
		Language:    language,
		TemplateID:  tmpl.ID,
		Payload:     payload,
	})
	if !ok {
		return
	}

	report := extract.MissingFields(doc)
	c.JSON(http.StatusAccepted, dto.ImportResponse{
		AcceptedResponse: accepted(job),
		Data:             doc,
		MissingCritical:  report.MissingCritical,
		Warnings:         report.Warnings,
	})
}

// resolveTemplate accepts a template id or stable key; empty means the default.
func (h *CVHandler) resolveTemplate(c *gin.Context, id domain.Identity, ref string) (*domain.Template, bool) {
	ctx := c.Request.Context()
	ref = strings.TrimSpace(ref)

	var (
		tmpl *domain.Template
		err  error
	)
	switch {
	case ref == "":
		tmpl, err = h.Jobs.GetTemplateByKey(ctx, h.DefaultTemplate)
	case isUUID(ref):
		tmpl, err = h.Jobs.GetTemplate(ctx, ref)
	default:
		tmpl, err = h.Jobs.GetTemplateByKey(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			respondError(c, http.StatusBadRequest, "unknown template")
			return nil, false
		}
		h.Logger.Error("Failed to get template", slog.String("template", ref), slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to get template")
		return nil, false
	}

	if tmpl.IsPremium && id.Tier != domain.TierPremium {
		respondError(c, http.StatusForbidden, "template requires a premium account")
		return nil, false
	}
	return tmpl, true
}

// admit runs the quota guard and writes the denial response.
func (h *CVHandler) admit(c *gin.Context, id domain.Identity) bool {
	decision, err := h.Quota.Admit(c.Request.Context(), id)
	if err != nil {
		h.Logger.Error("Quota check failed", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to check quota")
		return false
	}
	if decision.Allowed {
		return true
	}

	status := http.StatusTooManyRequests
	if decision.RequiresAuth {
		status = http.StatusForbidden
	}
	c.JSON(status, dto.ErrorResponse{
		Error:        domain.ErrQuotaExceeded.Error(),
		Reason:       decision.Reason,
		RequiresAuth: decision.RequiresAuth,
	})
	return false
}

// submit creates the job, publishes it and only then commits the guest trial.
func (h *CVHandler) submit(c *gin.Context, id domain.Identity, in domain.NewJob) (*domain.Job, bool) {
	ctx := c.Request.Context()
	in.Origin = id.Origin
	if id.Authenticated() {
		owner := id.UserID
		in.OwnerID = &owner
	}

	job, err := h.Jobs.CreateJob(ctx, in)
	if err != nil {
		h.Logger.Error("Failed to create job", slog.String("error", err.Error()))
		respondError(c, http.StatusInternalServerError, "Failed to create job")
		return nil, false
	}

	if err := h.Publisher.Enqueue(ctx, job.ID, job.TaskID); err != nil {
		h.Logger.Error("Failed to enqueue job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		if abandonErr := h.Jobs.AbandonQueued(ctx, job.ID, domain.ClassInternal); abandonErr != nil {
			h.Logger.Error("Failed to abandon unqueued job",
				slog.String("job_id", job.ID),
				slog.String("error", abandonErr.Error()),
			)
		}
		respondError(c, http.StatusServiceUnavailable, "Failed to queue job, please retry")
		return nil, false
	}

	if err := h.Quota.Commit(ctx, id); err != nil {
		// The job is already queued; a lost trial record only loosens the guest limit.
		h.Logger.Error("Failed to commit guest trial",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	h.Logger.Info("Job queued",
		slog.String("job_id", job.ID),
		slog.String("stage", job.Stage),
		slog.Bool("guest", !id.Authenticated()),
	)
	return job, true
}

func accepted(job *domain.Job) dto.AcceptedResponse {
	return dto.AcceptedResponse{ResumeID: job.ID, Status: job.Status, IsGuest: job.IsGuest()}
}

func projectName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultProjectName
	}
	return domain.Truncate(name, 200)
}

// validLanguage mirrors the oneof=ar en binding on the JSON requests.
func validLanguage(lang string) bool {
	switch lang {
	case "", domain.LanguageArabic, domain.LanguageEnglish:
		return true
	}
	return false
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
