package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/cv-forge/internal/api/dto"
	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/extract"
	"github.com/cuongbtq/cv-forge/internal/quota"
	"github.com/gin-gonic/gin"
)

// Identity headers set by the upstream auth proxy
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserTier = "X-User-Tier"
)

// JobStore is the job and template persistence the handlers use.
type JobStore interface {
	CreateJob(ctx context.Context, in domain.NewJob) (*domain.Job, error)
	AbandonQueued(ctx context.Context, jobID string, class domain.ErrorClass) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetJobForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error)
	CancelJob(ctx context.Context, jobID, ownerID string) error
	ListRecent(ctx context.Context, ownerID string, since time.Time, limit int) ([]domain.HistoryEntry, error)
	Stats(ctx context.Context, ownerID string, dayStart time.Time) (domain.UserStats, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	GetTemplateByKey(ctx context.Context, key string) (*domain.Template, error)
}

// Enqueuer publishes enqueue(job_id) to the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID, taskID string) error
}

// QuotaGuard admits identities and records consumed guest trials.
type QuotaGuard interface {
	Admit(ctx context.Context, id domain.Identity) (quota.Decision, error)
	Commit(ctx context.Context, id domain.Identity) error
	Remaining(ctx context.Context, id domain.Identity) (int, error)
}

// TemplateCatalog lists the active templates.
type TemplateCatalog interface {
	List(ctx context.Context) ([]domain.Template, error)
}

// PDFReader returns the text layer of an uploaded PDF.
type PDFReader interface {
	Text(ctx context.Context, pdf []byte) (string, error)
}

// HistoryExporter renders an identity's recent jobs as a spreadsheet.
type HistoryExporter interface {
	ExportXLSX(ctx context.Context, ownerID string) ([]byte, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger          *slog.Logger
	Jobs            JobStore
	Publisher       Enqueuer
	Quota           QuotaGuard
	Catalog         TemplateCatalog
	Extractor       extract.Extractor
	PDF             PDFReader
	Exporter        HistoryExporter
	DefaultTemplate string
	PromptMin       int
	PromptMax       int
	MaxUploadBytes  int64
	HistoryWindow   time.Duration
	HistoryLimit    int
	Now             func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// identity reads the caller from the auth proxy headers; no user id means guest.
func identity(c *gin.Context) domain.Identity {
	tier := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserTier)))
	if tier != domain.TierPremium {
		tier = domain.TierStandard
	}
	return domain.Identity{
		UserID: strings.TrimSpace(c.GetHeader(HeaderUserID)),
		Tier:   tier,
		Origin: c.ClientIP(),
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, dto.ErrorResponse{Error: msg})
}

// requireUser aborts with 401 for guests.
func requireUser(c *gin.Context, id domain.Identity) bool {
	if id.Authenticated() {
		return true
	}
	c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "authentication required", RequiresAuth: true})
	return false
}
