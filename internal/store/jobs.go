package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	id, project_id, owner_id, origin, parent_job_id, status, stage, language,
	template_id, payload, source, artifact_url, artifact_size, logs,
	error_message, error_class, retry_count, task_id, worker_id,
	lease_expires_at, created_at, started_at, completed_at, updated_at`

// CreateJob inserts a project (unless one is reused) and a QUEUED job in one transaction
func (s *Storage) CreateJob(ctx context.Context, in domain.NewJob) (*domain.Job, error) {
	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	language := in.Language
	if language == "" {
		language = domain.LanguageArabic
	}

	var job domain.Job
	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		projectID := in.ProjectID
		if projectID == "" {
			projectID = uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO projects (id, owner_id, name) VALUES ($1, $2, $3)`,
				projectID, in.OwnerID, in.ProjectName,
			); err != nil {
				return fmt.Errorf("failed to create project: %w", err)
			}
		}

		query := `
			INSERT INTO compile_jobs (
				id, project_id, owner_id, origin, parent_job_id, status,
				stage, language, template_id, payload, task_id
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10::jsonb, $11
			)
			RETURNING` + jobColumns

		return tx.GetContext(ctx, &job, query,
			uuid.NewString(),
			projectID,
			in.OwnerID,
			in.Origin,
			in.ParentJobID,
			domain.JobStatusQueued,
			in.Stage,
			language,
			in.TemplateID,
			string(payload),
			uuid.NewString(),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("stage", job.Stage),
		slog.Bool("guest", job.IsGuest()),
	)
	return &job, nil
}

// GetJob retrieves a job by its ID
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `SELECT`+jobColumns+` FROM compile_jobs WHERE id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobForOwner retrieves a job only if it belongs to ownerID
func (s *Storage) GetJobForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job,
		`SELECT`+jobColumns+` FROM compile_jobs WHERE id = $1 AND owner_id = $2`, jobID, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ClaimJob moves a job to PROCESSING for the delivery carrying taskID.
// A QUEUED job, or a PROCESSING job whose lease expired, can be claimed.
func (s *Storage) ClaimJob(ctx context.Context, jobID, taskID, workerID string, lease time.Duration) (*domain.Job, error) {
	query := `
		UPDATE compile_jobs
		SET status = 'PROCESSING',
		    worker_id = $3,
		    started_at = COALESCE(started_at, NOW()),
		    lease_expires_at = NOW() + ($4::float8 * INTERVAL '1 second'),
		    updated_at = NOW()
		WHERE id = $1
		  AND task_id = $2
		  AND (status = 'QUEUED'
		       OR (status = 'PROCESSING' AND (lease_expires_at IS NULL OR lease_expires_at < NOW())))
		RETURNING` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID, taskID, workerID, lease.Seconds())
	if err == nil {
		s.logger.Info("Job claimed successfully",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
			slog.Int("retry_count", job.RetryCount),
		)
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	current, getErr := s.GetJob(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	refusal := classifyRefusal(current, taskID)
	s.logger.Warn("Failed to claim job",
		slog.String("job_id", jobID),
		slog.String("task_id", taskID),
		slog.String("status", current.Status),
		slog.String("reason", refusal.Error()),
	)
	return current, refusal
}

// classifyRefusal explains why a claim matched no row. A matching handle
// that lost the race is reported as leased so the delivery is retried.
func classifyRefusal(job *domain.Job, taskID string) error {
	switch {
	case domain.IsTerminal(job.Status):
		return domain.ErrJobTerminal
	case job.TaskID != taskID:
		return domain.ErrJobAlreadyClaimed
	default:
		return domain.ErrJobLeased
	}
}

// fenced applies set to the job only while lease still owns it: the job is
// PROCESSING under the same task handle and claim holder. Placeholders in set
// start at $4.
func (s *Storage) fenced(ctx context.Context, op string, lease domain.Lease, set string, args ...any) error {
	query := `
		UPDATE compile_jobs
		SET ` + set + `,
		    updated_at = NOW()
		WHERE id = $1 AND task_id = $2 AND worker_id = $3 AND status = 'PROCESSING'`

	result, err := s.db.ExecContext(ctx, query, append([]any{lease.JobID, lease.TaskID, lease.Holder}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// SaveExtraction stores the structured document and advances the job to render
func (s *Storage) SaveExtraction(ctx context.Context, lease domain.Lease, payload json.RawMessage) error {
	return s.fenced(ctx, "save extraction", lease,
		`payload = $4::jsonb, stage = 'render'`,
		string(payload))
}

// SaveSource stores the rendered source and advances the job to compile
func (s *Storage) SaveSource(ctx context.Context, lease domain.Lease, source string) error {
	return s.fenced(ctx, "save source", lease,
		`source = $4, stage = 'compile'`,
		source)
}

// CompleteJob marks the job SUCCESS with its artifact
func (s *Storage) CompleteJob(ctx context.Context, lease domain.Lease, c domain.Completion) error {
	err := s.fenced(ctx, "complete job", lease, `
		    status = 'SUCCESS',
		    artifact_url = $4,
		    artifact_size = $5,
		    logs = $6,
		    error_message = '',
		    error_class = '',
		    completed_at = NOW(),
		    lease_expires_at = NULL`,
		c.ArtifactURL, c.ArtifactSize, domain.Truncate(c.Logs, domain.MaxLogsLen))
	if err != nil {
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", lease.JobID),
		slog.String("status", domain.JobStatusSuccess),
	)
	return nil
}

// FailJob marks the job FAILED; message is truncated to the public limit
func (s *Storage) FailJob(ctx context.Context, lease domain.Lease, class domain.ErrorClass, message, logs string) error {
	if message == "" {
		message = domain.PublicMessage(class)
	}
	err := s.fenced(ctx, "fail job", lease, `
		    status = 'FAILED',
		    error_class = $4,
		    error_message = $5,
		    logs = CASE WHEN $6 = '' THEN logs ELSE $6 END,
		    completed_at = NOW(),
		    lease_expires_at = NULL`,
		string(class),
		domain.Truncate(message, domain.MaxErrorMessageLen),
		domain.Truncate(logs, domain.MaxLogsLen))
	if err != nil {
		return err
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", lease.JobID),
		slog.String("status", domain.JobStatusFailed),
		slog.String("error_class", string(class)),
	)
	return nil
}

// AbandonQueued fails a job that never reached the task queue. Jobs a worker
// already claimed are left alone.
func (s *Storage) AbandonQueued(ctx context.Context, jobID string, class domain.ErrorClass) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE compile_jobs
		SET status = 'FAILED',
		    error_class = $2,
		    error_message = $3,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'QUEUED'`,
		jobID, string(class), domain.PublicMessage(class))
	if err != nil {
		return fmt.Errorf("failed to abandon job: %w", err)
	}
	return nil
}

// ScheduleRetry bumps retry_count and hands the job to newTaskID.
// The lease is held until the delayed delivery is due so the reaper leaves it
// alone; the holder stays so a failed publish can still be recorded.
func (s *Storage) ScheduleRetry(ctx context.Context, lease domain.Lease, newTaskID string, class domain.ErrorClass, delay time.Duration, logs string) error {
	return s.fenced(ctx, "schedule retry", lease, `
		    retry_count = retry_count + 1,
		    task_id = $4,
		    error_class = $5,
		    logs = $6,
		    lease_expires_at = NOW() + ($7::float8 * INTERVAL '1 second')`,
		newTaskID, string(class),
		domain.Truncate(logs, domain.MaxLogsLen), delay.Seconds())
}

// CancelJob marks a non-terminal job owned by ownerID as CANCELLED
func (s *Storage) CancelJob(ctx context.Context, jobID, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE compile_jobs
		SET status = 'CANCELLED',
		    error_class = 'cancelled',
		    completed_at = NOW(),
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status IN ('QUEUED', 'PROCESSING')`,
		jobID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetJobForOwner(ctx, jobID, ownerID); err != nil {
			return err
		}
		return domain.ErrJobTerminal
	}
	return nil
}

// ListRecent returns ownerID's jobs created since the given time, newest first
func (s *Storage) ListRecent(ctx context.Context, ownerID string, since time.Time, limit int) ([]domain.HistoryEntry, error) {
	query := `
		SELECT j.id, p.name AS project_name, t.name AS template_name, j.status,
		       j.artifact_url, j.error_class, j.created_at, j.completed_at
		FROM compile_jobs j
		JOIN projects p ON p.id = j.project_id
		JOIN cv_templates t ON t.id = j.template_id
		WHERE j.owner_id = $1 AND j.created_at >= $2
		ORDER BY j.created_at DESC, j.id DESC
		LIMIT $3`

	entries := []domain.HistoryEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, ownerID, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return entries, nil
}

// Stats aggregates ownerID's jobs; Today counts jobs created since dayStart
func (s *Storage) Stats(ctx context.Context, ownerID string, dayStart time.Time) (domain.UserStats, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'SUCCESS') AS successful,
		       COUNT(*) FILTER (WHERE created_at >= $2) AS today
		FROM compile_jobs
		WHERE owner_id = $1`

	var stats domain.UserStats
	if err := s.db.GetContext(ctx, &stats, query, ownerID, dayStart); err != nil {
		return domain.UserStats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// CountCreatedSince counts ownerID's jobs created at or after since
func (s *Storage) CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM compile_jobs WHERE owner_id = $1 AND created_at >= $2`, ownerID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

// DeleteTerminalBefore removes FAILED and CANCELLED jobs completed before cutoff.
// SUCCESS rows stay: they back the history view and template usage counts.
func (s *Storage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM compile_jobs
		WHERE status IN ('FAILED', 'CANCELLED') AND COALESCE(completed_at, created_at) < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return result.RowsAffected()
}

// FailExpiredLeases fails PROCESSING jobs whose lease ran out more than grace ago
func (s *Storage) FailExpiredLeases(ctx context.Context, grace time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE compile_jobs
		SET status = 'FAILED',
		    error_class = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE status = 'PROCESSING'
		  AND lease_expires_at < NOW() - ($3::float8 * INTERVAL '1 second')`,
		string(domain.ClassWorkerBudget), "Worker lost while processing the job.", grace.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}
	return result.RowsAffected()
}
