package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
			assert.Equal(t, "cvforge_db", cfg.Database.Database)
			assert.Equal(t, "cv_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "cv_compile_retry", cfg.RabbitMQ.RetryQueue)
			assert.Equal(t, 8, cfg.Worker.Concurrency)
			assert.Equal(t, 3*time.Minute, cfg.Worker.SoftTimeLimit)
			assert.Equal(t, 10*time.Minute, cfg.Worker.RetryBackoffMax)
			assert.Equal(t, 2*time.Minute, cfg.Compiler.Timeout)

			// untouched sections keep their defaults
			assert.Equal(t, 24*time.Hour, cfg.Quota.GuestWindow)
			assert.Equal(t, "cv.tex", cfg.Compiler.EntryFile)
			assert.Equal(t, 100, cfg.Prompt.MinLength)
			assert.Equal(t, 3000, cfg.Prompt.MaxLength)
			assert.Equal(t, "classic_arabic", cfg.Catalog.DefaultTemplate)
		})
	}
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DATABASE_PASSWORD", "from-env")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "from-env", cfg.Database.Password)
}

func validConfig() *Config {
	cfg := Defaults()
	cfg.Server.Port = 8080
	cfg.Database = DatabaseConfig{Host: "localhost", Port: 5432, Database: "cvforge_db"}
	cfg.RabbitMQ = RabbitMQConfig{
		Host:       "localhost",
		Port:       5672,
		Exchange:   ExchangeConfig{Name: "cv_exchange"},
		Queue:      QueueConfig{Name: "cv_compile_queue"},
		RetryQueue: "cv_compile_retry",
	}
	cfg.Storage.Root = "/tmp/media"
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			errString: "database name is required",
		},
		{
			name:      "empty exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "inverted prompt bounds",
			mutate:    func(c *Config) { c.Prompt.MaxLength = 50 },
			errString: "invalid prompt bounds",
		},
		{
			name:      "premium below standard",
			mutate:    func(c *Config) { c.Quota.PremiumDaily = 5 },
			errString: "invalid daily quota",
		},
		{
			name:      "missing default template",
			mutate:    func(c *Config) { c.Catalog.DefaultTemplate = "" },
			errString: "default_template is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing retry queue",
			mutate:    func(c *Config) { c.RabbitMQ.RetryQueue = "" },
			errString: "retry_queue is required",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			errString: "concurrency must be greater than 0",
		},
		{
			name:      "hard limit below soft limit",
			mutate:    func(c *Config) { c.Worker.HardTimeLimit = 2 * time.Minute },
			errString: "hard_time_limit must exceed soft_time_limit",
		},
		{
			name:      "compiler timeout beyond soft budget",
			mutate:    func(c *Config) { c.Compiler.Timeout = 5 * time.Minute },
			errString: "compiler timeout",
		},
		{
			name:      "negative retries",
			mutate:    func(c *Config) { c.Worker.MaxRetries = -1 },
			errString: "max_retries must not be negative",
		},
		{
			name:      "backoff cap below base",
			mutate:    func(c *Config) { c.Worker.RetryBackoffMax = time.Second },
			errString: "invalid retry backoff",
		},
		{
			name:      "missing storage root",
			mutate:    func(c *Config) { c.Storage.Root = "" },
			errString: "storage root is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
