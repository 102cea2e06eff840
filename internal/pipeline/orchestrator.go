package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cv-forge/internal/artifact"
	"github.com/cuongbtq/cv-forge/internal/compiler"
	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/extract"
	"github.com/google/uuid"
)

// JobStore is the slice of the job store the orchestrator drives.
type JobStore interface {
	ClaimJob(ctx context.Context, jobID, taskID, workerID string, lease time.Duration) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	SaveExtraction(ctx context.Context, lease domain.Lease, payload json.RawMessage) error
	SaveSource(ctx context.Context, lease domain.Lease, source string) error
	CompleteJob(ctx context.Context, lease domain.Lease, c domain.Completion) error
	FailJob(ctx context.Context, lease domain.Lease, class domain.ErrorClass, message, logs string) error
	ScheduleRetry(ctx context.Context, lease domain.Lease, newTaskID string, class domain.ErrorClass, delay time.Duration, logs string) error
}

// Renderer turns a document into compiler-ready source.
type Renderer interface {
	Render(key string, doc domain.Document) (string, error)
}

// Compiler produces the PDF.
type Compiler interface {
	Compile(ctx context.Context, in compiler.Input) (*compiler.Result, error)
}

// Scheduler publishes a delayed delivery for a job.
type Scheduler interface {
	Schedule(ctx context.Context, jobID, taskID string, delay time.Duration) error
}

// Delivery is one task-queue message.
type Delivery struct {
	JobID  string
	TaskID string
}

// Disposition tells the consumer what to do with the delivery.
type Disposition int

const (
	// Ack removes the delivery; the job reached a state that needs nothing more from it.
	Ack Disposition = iota
	// Requeue returns the delivery to the queue for another attempt.
	Requeue
)

func (d Disposition) String() string {
	if d == Requeue {
		return "requeue"
	}
	return "ack"
}

// Config holds orchestrator policy
type Config struct {
	WorkerID      string
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	FontPath      string
}

// Orchestrator drives a job from claim to a terminal state.
type Orchestrator struct {
	cfg       Config
	store     JobStore
	extractor extract.Extractor
	renderer  Renderer
	compiler  Compiler
	artifacts artifact.Store
	scheduler Scheduler
	logger    *slog.Logger
	jitter    func() float64
}

// New creates an Orchestrator
func New(
	cfg Config,
	store JobStore,
	extractor extract.Extractor,
	renderer Renderer,
	comp Compiler,
	artifacts artifact.Store,
	scheduler Scheduler,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		renderer:  renderer,
		compiler:  comp,
		artifacts: artifacts,
		scheduler: scheduler,
		logger:    logger,
	}
}

var errCancelled = errors.New("job was cancelled")

// Process claims the delivery's job and runs its remaining stages.
func (o *Orchestrator) Process(ctx context.Context, d Delivery) Disposition {
	logger := o.logger.With(slog.String("job_id", d.JobID), slog.String("task_id", d.TaskID))

	job, err := o.store.ClaimJob(ctx, d.JobID, d.TaskID, o.claimHolder(), o.cfg.HardTimeLimit)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobTerminal),
		errors.Is(err, domain.ErrJobAlreadyClaimed),
		errors.Is(err, domain.ErrJobNotFound):
		logger.Info("Skipping delivery", slog.String("reason", err.Error()))
		return Ack
	case errors.Is(err, domain.ErrJobLeased):
		return o.deferDelivery(ctx, d, job, logger)
	default:
		logger.Error("Failed to claim job", slog.Any("error", err))
		return Requeue
	}

	return o.run(ctx, job, logger)
}

// claimHolder names one claim. Two claims of the same task, even by the same
// worker process, never share a holder.
func (o *Orchestrator) claimHolder() string {
	return o.cfg.WorkerID + "/" + uuid.NewString()[:8]
}

// deferDelivery re-publishes a delivery whose job is leased to a live worker
// so it is looked at again once the lease runs out.
func (o *Orchestrator) deferDelivery(ctx context.Context, d Delivery, job *domain.Job, logger *slog.Logger) Disposition {
	delay := time.Second
	if job != nil && job.LeaseExpiresAt != nil {
		if until := time.Until(*job.LeaseExpiresAt); until > delay {
			delay = until
		}
	}
	if err := o.scheduler.Schedule(ctx, d.JobID, d.TaskID, delay); err != nil {
		logger.Error("Failed to defer leased delivery", slog.Any("error", err))
		return Requeue
	}
	logger.Info("Job leased to another worker, delivery deferred", slog.Duration("delay", delay))
	return Ack
}

func (o *Orchestrator) run(ctx context.Context, job *domain.Job, logger *slog.Logger) Disposition {
	start := time.Now()
	hardCtx, cancelHard := context.WithTimeout(ctx, o.cfg.HardTimeLimit)
	defer cancelHard()
	softCtx, cancelSoft := context.WithTimeout(hardCtx, o.cfg.SoftTimeLimit)
	defer cancelSoft()

	logger.Info("Processing job",
		slog.String("stage", job.Stage),
		slog.Int("retry_count", job.RetryCount),
	)

	err := o.execute(softCtx, job, logger)
	if err == nil {
		logger.Info("Job completed successfully", slog.Duration("elapsed", time.Since(start)))
		return Ack
	}

	if ctx.Err() != nil {
		// Worker shutdown: the lease lapses and a redelivery resumes the job.
		logger.Warn("Job interrupted by shutdown", slog.String("stage", job.Stage))
		return Requeue
	}

	recordCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), start.Add(o.cfg.HardTimeLimit))
	defer cancel()
	o.handleFailure(recordCtx, softCtx, job, err, logger)
	return Ack
}

// execute runs the job from its current stage. job is updated as stages complete.
func (o *Orchestrator) execute(ctx context.Context, job *domain.Job, logger *slog.Logger) error {
	tmpl, err := o.store.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			return domain.NewStageError(domain.ClassRender, job.Stage, err)
		}
		return domain.NewStageError(domain.ClassInternal, job.Stage, err)
	}

	if job.Stage == domain.StageExtraction {
		if err := o.checkCancelled(ctx, job); err != nil {
			return err
		}
		if err := o.extractStage(ctx, job, tmpl); err != nil {
			return err
		}
		logger.Info("Extraction finished", slog.Int("payload_bytes", len(job.Payload)))
	}

	if job.Stage == domain.StageRender {
		if err := o.checkCancelled(ctx, job); err != nil {
			return err
		}
		if err := o.renderStage(ctx, job, tmpl); err != nil {
			return err
		}
		logger.Info("Render finished", slog.Int("source_bytes", len(job.Source)))
	}

	if job.Stage != domain.StageCompile {
		return domain.NewStageError(domain.ClassInternal, job.Stage, fmt.Errorf("unknown stage %q", job.Stage))
	}
	if err := o.checkCancelled(ctx, job); err != nil {
		return err
	}
	return o.compileStage(ctx, job)
}

func (o *Orchestrator) extractStage(ctx context.Context, job *domain.Job, tmpl *domain.Template) error {
	var in domain.AuthorInput
	if err := json.Unmarshal(job.Payload, &in); err != nil || in.RawPrompt == "" {
		return domain.NewStageError(domain.ClassExtraction, domain.StageExtraction,
			fmt.Errorf("payload carries no prompt: %v", err))
	}
	mode := in.Mode
	if mode == "" {
		mode = domain.ModeAuthor
	}

	doc, err := o.extractor.Extract(ctx, extract.Request{
		Text:       in.RawPrompt,
		Mode:       mode,
		Language:   job.Language,
		SchemaName: tmpl.SchemaName,
	})
	if err != nil {
		return err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return domain.NewStageError(domain.ClassInternal, domain.StageExtraction, err)
	}
	if err := o.store.SaveExtraction(ctx, job.Lease(), payload); err != nil {
		return err
	}
	job.Payload = payload
	job.Stage = domain.StageRender
	return nil
}

func (o *Orchestrator) renderStage(ctx context.Context, job *domain.Job, tmpl *domain.Template) error {
	var doc domain.Document
	if err := json.Unmarshal(job.Payload, &doc); err != nil {
		return domain.NewStageError(domain.ClassRender, domain.StageRender, fmt.Errorf("decode payload: %w", err))
	}
	source, err := o.renderer.Render(tmpl.Key, doc)
	if err != nil {
		return err
	}
	if err := o.store.SaveSource(ctx, job.Lease(), source); err != nil {
		return err
	}
	job.Source = source
	job.Stage = domain.StageCompile
	return nil
}

func (o *Orchestrator) compileStage(ctx context.Context, job *domain.Job) error {
	res, err := o.compiler.Compile(ctx, compiler.Input{
		JobID:    job.ID,
		Source:   job.Source,
		FontPath: o.cfg.FontPath,
	})
	if err != nil {
		return err
	}

	url, err := o.artifacts.Write(ctx, artifact.JobPath(job.ID, job.TaskID), res.PDF)
	if err != nil {
		return domain.NewStageError(domain.ClassInternal, domain.StageCompile, err)
	}

	return o.store.CompleteJob(ctx, job.Lease(), domain.Completion{
		ArtifactURL:  url,
		ArtifactSize: int64(len(res.PDF)),
		Logs:         res.Logs,
	})
}

func (o *Orchestrator) checkCancelled(ctx context.Context, job *domain.Job) error {
	current, err := o.store.GetJob(ctx, job.ID)
	if err != nil {
		return domain.NewStageError(domain.ClassInternal, job.Stage, err)
	}
	if current.Status == domain.JobStatusCancelled {
		return domain.NewStageError(domain.ClassCancelled, job.Stage, errCancelled)
	}
	return nil
}

// handleFailure is the single place a stage failure is recorded.
func (o *Orchestrator) handleFailure(ctx, softCtx context.Context, job *domain.Job, err error, logger *slog.Logger) {
	if errors.Is(err, domain.ErrLeaseLost) {
		logger.Warn("Lease lost, abandoning job", slog.String("stage", job.Stage))
		return
	}

	class := domain.ClassOf(err)
	if errors.Is(softCtx.Err(), context.DeadlineExceeded) {
		class = domain.ClassWorkerBudget
	}
	if class == domain.ClassCancelled {
		logger.Info("Job cancelled, stopping", slog.String("stage", job.Stage))
		return
	}

	logger = logger.With(
		slog.String("stage", job.Stage),
		slog.String("error_class", string(class)),
	)

	if class.Retryable() && job.RetryCount < o.cfg.MaxRetries {
		if o.scheduleRetry(ctx, job, class, err, logger) {
			return
		}
		class = domain.ClassInternal
	}

	if class.OperatorFacing() {
		logger.Error("pipeline.operator_alert",
			slog.String("job_id", job.ID),
			slog.Int("payload_bytes", len(job.Payload)),
			slog.Int("source_bytes", len(job.Source)),
			slog.Bool("has_font", o.cfg.FontPath != ""),
			slog.Any("error", err),
		)
	}

	message := domain.PublicMessage(class)
	if class == domain.ClassCompilerTimeout {
		message = fmt.Sprintf("%s Gave up after %d attempts.", message, job.RetryCount+1)
	}
	if failErr := o.store.FailJob(ctx, job.Lease(), class, message, err.Error()); failErr != nil {
		logger.Error("Failed to record job failure", slog.Any("error", failErr), slog.Any("cause", err))
		return
	}
	logger.Error("Job failed", slog.Any("error", err))
}

// scheduleRetry hands the job to a fresh task handle and publishes it after
// the backoff delay. It reports whether the job needs no further handling.
func (o *Orchestrator) scheduleRetry(ctx context.Context, job *domain.Job, class domain.ErrorClass, cause error, logger *slog.Logger) bool {
	delay := Backoff(job.RetryCount, o.cfg.BackoffBase, o.cfg.BackoffMax, o.jitter)
	newTaskID := uuid.NewString()

	if err := o.store.ScheduleRetry(ctx, job.Lease(), newTaskID, class, delay, cause.Error()); err != nil {
		logger.Error("Failed to schedule retry", slog.Any("error", err))
		return errors.Is(err, domain.ErrLeaseLost)
	}
	job.TaskID = newTaskID
	job.RetryCount++

	if err := o.scheduler.Schedule(ctx, job.ID, newTaskID, delay); err != nil {
		logger.Error("Failed to publish retry", slog.Any("error", err))
		return false
	}

	logger.Warn("Retrying job after compiler timeout",
		slog.Int("retry_count", job.RetryCount),
		slog.Duration("delay", delay),
	)
	return true
}
