package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/cv-forge/internal/artifact"
	"github.com/cuongbtq/cv-forge/internal/compiler"
	"github.com/cuongbtq/cv-forge/internal/config"
	"github.com/cuongbtq/cv-forge/internal/extract"
	"github.com/cuongbtq/cv-forge/internal/pipeline"
	"github.com/cuongbtq/cv-forge/internal/queue"
	"github.com/cuongbtq/cv-forge/internal/quota"
	"github.com/cuongbtq/cv-forge/internal/render"
	"github.com/cuongbtq/cv-forge/internal/runner"
	"github.com/cuongbtq/cv-forge/internal/store"
	"github.com/cuongbtq/cv-forge/internal/worker"
	"github.com/cuongbtq/cv-forge/shared/logger"
	"github.com/cuongbtq/cv-forge/shared/postgresql"
	"github.com/cuongbtq/cv-forge/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	workerID := newWorkerID()
	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, cfg.Worker.Concurrency, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage := store.NewStorage(dbClient.GetDB(), appLogger.Logger)
	if cfg.Database.Migrate {
		if err := storage.Migrate(ctx); err != nil {
			return err
		}
	}

	templates, err := storage.ListActiveTemplates(ctx)
	if err != nil {
		return err
	}
	if err := render.Verify(templates); err != nil {
		return fmt.Errorf("template catalog: %w", err)
	}

	orchestrator, err := initOrchestrator(cfg, workerID, storage, rabbitClient, appLogger.Logger)
	if err != nil {
		return err
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:          appLogger.Logger,
		Broker:          rabbitClient,
		Processor:       orchestrator,
		WorkerID:        workerID,
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	})

	maintenance := worker.NewMaintenance(worker.MaintenanceConfig{
		Interval:   cfg.Worker.MaintenanceInterval,
		Retention:  cfg.Worker.Retention,
		LeaseGrace: cfg.Worker.LeaseGrace,
	}, storage, quota.NewPostgresTrials(dbClient.GetDB()), appLogger.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerInstance.Start(gctx)
	})
	g.Go(func() error {
		return maintenance.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case amqpErr := <-rabbitClient.NotifyClose():
			return fmt.Errorf("rabbitmq channel closed: %v", amqpErr)
		}
	})

	appLogger.Info("Worker service started successfully")

	if err := g.Wait(); err != nil {
		appLogger.Error("Worker error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initOrchestrator builds the pipeline stages around the shared clients
func initOrchestrator(cfg *config.Config, workerID string, storage *store.Storage, rabbitClient *rabbitmq.Client, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	renderer, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	artifacts, err := artifact.NewLocal(cfg.Storage.Root, cfg.Storage.BaseURL, logger)
	if err != nil {
		return nil, err
	}

	exec := runner.Exec{Logger: logger}
	comp := compiler.New(compiler.Config{
		Binary:    cfg.Compiler.Binary,
		EntryFile: cfg.Compiler.EntryFile,
		Timeout:   cfg.Compiler.Timeout,
		WorkDir:   cfg.Compiler.WorkDir,
	}, exec, logger)

	extractor := extract.NewClient(extract.Config{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		Model:             cfg.OpenAI.Model,
		Timeout:           cfg.OpenAI.Timeout,
		AuthorTemperature: cfg.OpenAI.AuthorTemperature,
		ParseTemperature:  cfg.OpenAI.ParseTemperature,
	}, logger)

	return pipeline.New(pipeline.Config{
		WorkerID:      workerID,
		SoftTimeLimit: cfg.Worker.SoftTimeLimit,
		HardTimeLimit: cfg.Worker.HardTimeLimit,
		MaxRetries:    cfg.Worker.MaxRetries,
		BackoffBase:   cfg.Worker.RetryBackoffBase,
		BackoffMax:    cfg.Worker.RetryBackoffMax,
		FontPath:      cfg.Compiler.FontPath,
	}, storage, extractor, renderer, comp, artifacts, queue.NewPublisher(rabbitClient), logger), nil
}

// newWorkerID names this process for consumer tags and job leases
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      "cv-worker-service",
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client; prefetch defaults to the pool size
func initRabbitMQ(cfg *config.RabbitMQConfig, concurrency int, logger *slog.Logger) (*rabbitmq.Client, error) {
	prefetch := cfg.Consumer.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RetryQueueName:     cfg.RetryQueue,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      prefetch,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
