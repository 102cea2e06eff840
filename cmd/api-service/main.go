package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/cv-forge/internal/api/handler"
	"github.com/cuongbtq/cv-forge/internal/api/router"
	"github.com/cuongbtq/cv-forge/internal/catalog"
	"github.com/cuongbtq/cv-forge/internal/config"
	"github.com/cuongbtq/cv-forge/internal/extract"
	"github.com/cuongbtq/cv-forge/internal/history"
	"github.com/cuongbtq/cv-forge/internal/queue"
	"github.com/cuongbtq/cv-forge/internal/quota"
	"github.com/cuongbtq/cv-forge/internal/render"
	"github.com/cuongbtq/cv-forge/internal/runner"
	"github.com/cuongbtq/cv-forge/internal/store"
	"github.com/cuongbtq/cv-forge/shared/logger"
	"github.com/cuongbtq/cv-forge/shared/postgresql"
	"github.com/cuongbtq/cv-forge/shared/rabbitmq"
	"github.com/gin-gonic/gin"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
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
	if err := verifyCatalog(ctx, storage, cfg.Catalog.DefaultTemplate); err != nil {
		return err
	}

	r := initRouter(cfg, appLogger.Logger, storage, dbClient, rabbitClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.WithCORS(r, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// verifyCatalog fails startup when an active template has no registered
// renderer or the default template is missing.
func verifyCatalog(ctx context.Context, storage *store.Storage, defaultKey string) error {
	templates, err := storage.ListActiveTemplates(ctx)
	if err != nil {
		return err
	}
	if err := render.Verify(templates); err != nil {
		return fmt.Errorf("template catalog: %w", err)
	}
	if _, err := storage.GetTemplateByKey(ctx, defaultKey); err != nil {
		return fmt.Errorf("default template %q: %w", defaultKey, err)
	}
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      "cv-api-service",
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

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
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
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter wires the request layer onto the shared infrastructure
func initRouter(cfg *config.Config, logger *slog.Logger, storage *store.Storage, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	db := dbClient.GetDB()
	handlerDeps := &handler.Dependencies{
		Logger:    logger,
		Jobs:      storage,
		Publisher: queue.NewPublisher(rabbitClient),
		Quota: quota.NewGuard(quota.Config{
			GuestWindow:   cfg.Quota.GuestWindow,
			StandardDaily: cfg.Quota.StandardDaily,
			PremiumDaily:  cfg.Quota.PremiumDaily,
		}, quota.NewPostgresTrials(db), storage),
		Catalog: catalog.NewCache(storage, cfg.Catalog.TTL),
		Extractor: extract.NewClient(extract.Config{
			APIKey:            cfg.OpenAI.APIKey,
			BaseURL:           cfg.OpenAI.BaseURL,
			Model:             cfg.OpenAI.Model,
			Timeout:           cfg.OpenAI.Timeout,
			AuthorTemperature: cfg.OpenAI.AuthorTemperature,
			ParseTemperature:  cfg.OpenAI.ParseTemperature,
		}, logger),
		PDF:             extract.NewTextLayer(runner.Exec{Logger: logger}, cfg.OpenAI.Pdftotext),
		Exporter:        history.NewExporter(storage, cfg.History.Window, cfg.History.Limit, logger),
		DefaultTemplate: cfg.Catalog.DefaultTemplate,
		PromptMin:       cfg.Prompt.MinLength,
		PromptMax:       cfg.Prompt.MaxLength,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		HistoryWindow:   cfg.History.Window,
		HistoryLimit:    cfg.History.Limit,
	}

	return router.SetupRouter(handlerDeps, router.Options{
		ArtifactRoot:   cfg.Storage.Root,
		MediaPrefix:    "/media",
		TrustedProxies: cfg.Server.TrustedProxies,
		Health: map[string]router.HealthCheck{
			"postgres": dbClient.HealthCheck,
			"rabbitmq": func(context.Context) error {
				if !rabbitClient.IsConnected() {
					return errors.New("not connected")
				}
				return nil
			},
		},
	})
}
