package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/pipeline"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// ErrDeliveriesClosed is returned by Start when the broker stops delivering before shutdown.
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Broker is the subset of the RabbitMQ client the worker consumes through.
type Broker interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// Processor runs one delivery through the pipeline.
type Processor interface {
	Process(ctx context.Context, d pipeline.Delivery) pipeline.Disposition
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Broker          Broker
	Processor       Processor
	WorkerID        string
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Worker consumes the task queue and feeds a fixed pool of pipeline goroutines.
type Worker struct {
	logger          *slog.Logger
	broker          Broker
	processor       Processor
	workerID        string
	concurrency     int
	shutdownTimeout time.Duration
	jobsChan        chan *domain.JobMessage
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		logger:          cfg.Logger,
		broker:          cfg.Broker,
		processor:       cfg.Processor,
		workerID:        cfg.WorkerID,
		concurrency:     concurrency,
		shutdownTimeout: cfg.ShutdownTimeout,
		jobsChan:        make(chan *domain.JobMessage),
	}
}

// Start consumes until ctx is cancelled, then waits up to the shutdown timeout
// for in-flight jobs. Jobs still running after that are interrupted and requeued.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("shutdown_timeout", w.shutdownTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	// In-flight jobs outlive ctx until the shutdown timeout fires.
	procCtx, procCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer procCancel()

	var pool errgroup.Group
	w.spawnWorkerPool(procCtx, &pool)

	dispatchErr := w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)

	done := make(chan struct{})
	go func() {
		_ = pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.shutdownTimeout):
		w.logger.Warn("Shutdown timeout exceeded, interrupting in-flight jobs",
			slog.String("worker_id", w.workerID),
		)
		procCancel()
		<-done
	}

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return dispatchErr
}

// setupConsumer starts consuming with the worker ID as consumer tag
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.broker.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}
