package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/pipeline"
)

// processJob runs one message through the orchestrator
func (w *Worker) processJob(ctx context.Context, workerName string, msg *domain.JobMessage) pipeline.Disposition {
	start := time.Now()
	w.logger.Info("Worker received job",
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.JobID),
		slog.String("task_id", msg.TaskID),
		slog.Bool("redelivered", msg.Redelivered),
	)

	disposition := w.processor.Process(ctx, pipeline.Delivery{JobID: msg.JobID, TaskID: msg.TaskID})

	w.logger.Info("Job delivery handled",
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.JobID),
		slog.String("disposition", disposition.String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return disposition
}

// settle acknowledges or requeues the delivery
func (w *Worker) settle(workerName, jobID string, tag uint64, disposition pipeline.Disposition) {
	if disposition == pipeline.Requeue {
		if err := w.broker.Nack(tag, true); err != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if err := w.broker.Ack(tag); err != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
