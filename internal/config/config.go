package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Compiler CompilerConfig `yaml:"compiler"`
	Storage  StorageConfig  `yaml:"storage"`
	Quota    QuotaConfig    `yaml:"quota"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Prompt   PromptConfig   `yaml:"prompt"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	// TrustedProxies may set X-Forwarded-For; empty means the peer address is the origin.
	TrustedProxies  []string      `yaml:"trusted_proxies"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	Migrate         bool          `yaml:"migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RetryQueue string           `yaml:"retry_queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency         int           `yaml:"concurrency"`
	SoftTimeLimit       time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit       time.Duration `yaml:"hard_time_limit"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoffBase    time.Duration `yaml:"retry_backoff_base"`
	RetryBackoffMax     time.Duration `yaml:"retry_backoff_max"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	Retention           time.Duration `yaml:"retention"`
	LeaseGrace          time.Duration `yaml:"lease_grace"`
}

// OpenAIConfig holds extraction adapter settings
type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	AuthorTemperature float32       `yaml:"author_temperature"`
	ParseTemperature  float32       `yaml:"parse_temperature"`
	Pdftotext         string        `yaml:"pdftotext"`
}

// CompilerConfig holds compiler invoker settings
type CompilerConfig struct {
	Binary    string        `yaml:"binary"`
	EntryFile string        `yaml:"entry_file"`
	Timeout   time.Duration `yaml:"timeout"`
	FontPath  string        `yaml:"font_path"`
	WorkDir   string        `yaml:"work_dir"`
}

// StorageConfig holds artifact storage settings
type StorageConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

// QuotaConfig holds admission control settings
type QuotaConfig struct {
	GuestWindow   time.Duration `yaml:"guest_window"`
	StandardDaily int           `yaml:"standard_daily"`
	PremiumDaily  int           `yaml:"premium_daily"`
}

// CatalogConfig holds template cache settings
type CatalogConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	DefaultTemplate string        `yaml:"default_template"`
}

// PromptConfig holds authoring input bounds
type PromptConfig struct {
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

// HistoryConfig bounds the history view and its export
type HistoryConfig struct {
	Window time.Duration `yaml:"window"`
	Limit  int           `yaml:"limit"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

// Defaults returns the pipeline's standard limits; YAML values override them.
func Defaults() *Config {
	return &Config{
		Worker: WorkerConfig{
			Concurrency:         4,
			SoftTimeLimit:       3 * time.Minute,
			HardTimeLimit:       4 * time.Minute,
			MaxRetries:          2,
			RetryBackoffBase:    10 * time.Second,
			RetryBackoffMax:     600 * time.Second,
			ShutdownTimeout:     30 * time.Second,
			MaintenanceInterval: time.Hour,
			Retention:           30 * 24 * time.Hour,
			LeaseGrace:          5 * time.Minute,
		},
		OpenAI: OpenAIConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Timeout:           60 * time.Second,
			AuthorTemperature: 0.3,
			ParseTemperature:  0.0,
			Pdftotext:         "pdftotext",
		},
		Compiler: CompilerConfig{
			Binary:    "tectonic",
			EntryFile: "cv.tex",
			Timeout:   2 * time.Minute,
		},
		Quota: QuotaConfig{
			GuestWindow:   24 * time.Hour,
			StandardDaily: 10,
			PremiumDaily:  50,
		},
		Catalog: CatalogConfig{
			TTL:             time.Hour,
			DefaultTemplate: "classic_arabic",
		},
		Prompt: PromptConfig{
			MinLength: 100,
			MaxLength: 3000,
		},
		History: HistoryConfig{
			Window: 30 * 24 * time.Hour,
			Limit:  50,
		},
		Server: ServerConfig{
			MaxUploadBytes: 10 << 20,
		},
	}
}

// applyEnv lets secrets come from the environment instead of the YAML file
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
}

// validateShared checks the sections both services depend on
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

// ValidateAPIConfig checks the configuration of the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Prompt.MinLength <= 0 || c.Prompt.MaxLength < c.Prompt.MinLength {
		return fmt.Errorf("invalid prompt bounds: min %d, max %d", c.Prompt.MinLength, c.Prompt.MaxLength)
	}

	if c.Quota.StandardDaily <= 0 || c.Quota.PremiumDaily < c.Quota.StandardDaily {
		return fmt.Errorf("invalid daily quota: standard %d, premium %d", c.Quota.StandardDaily, c.Quota.PremiumDaily)
	}

	if c.Quota.GuestWindow <= 0 {
		return fmt.Errorf("quota guest_window must be greater than 0")
	}

	if c.Catalog.DefaultTemplate == "" {
		return fmt.Errorf("catalog default_template is required")
	}

	return nil
}

// ValidateWorkerConfig checks the configuration of the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.RabbitMQ.RetryQueue == "" {
		return fmt.Errorf("rabbitmq retry_queue is required")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.SoftTimeLimit <= 0 || c.Worker.HardTimeLimit <= c.Worker.SoftTimeLimit {
		return fmt.Errorf("worker hard_time_limit must exceed soft_time_limit (%s, %s)", c.Worker.HardTimeLimit, c.Worker.SoftTimeLimit)
	}

	if c.Compiler.Timeout <= 0 || c.Compiler.Timeout >= c.Worker.SoftTimeLimit {
		return fmt.Errorf("compiler timeout must be positive and below the worker soft_time_limit")
	}

	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("worker max_retries must not be negative")
	}

	if c.Worker.RetryBackoffBase <= 0 || c.Worker.RetryBackoffMax < c.Worker.RetryBackoffBase {
		return fmt.Errorf("invalid retry backoff: base %s, max %s", c.Worker.RetryBackoffBase, c.Worker.RetryBackoffMax)
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	if c.Compiler.Binary == "" {
		return fmt.Errorf("compiler binary is required")
	}

	return nil
}
