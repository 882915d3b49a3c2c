// Package config defines the application configuration for the responder
// daemon.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lewisedginton/afk_responder/pkg/config"
	"github.com/lewisedginton/afk_responder/pkg/logger"
)

// Generation provider names.
const (
	ProviderOpenRouter = "openrouter"
	ProviderClaude     = "claude"
	ProviderGemini     = "gemini"
)

// Storage backend names.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// AppConfig is the root configuration for the responder daemon.
type AppConfig struct {
	ServiceName       string        `env:"SERVICE_NAME" yaml:"service_name" default:"afk-responder"`
	Environment       string        `env:"ENVIRONMENT" yaml:"environment" default:"production"`
	Port              int           `env:"PORT" yaml:"port" default:"8080"`
	KeepAliveInterval time.Duration `env:"KEEP_ALIVE_INTERVAL" yaml:"keep_alive_interval" default:"30s"`

	Logging    LoggingConfig    `yaml:"logging"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Generation GenerationConfig `yaml:"generation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Storage    StorageConfig    `yaml:"storage"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"json"`
}

// TelegramConfig holds the control-bot and MTProto credentials.
type TelegramConfig struct {
	BotToken      string `env:"TELEGRAM_BOT_TOKEN" yaml:"bot_token" required:"true"`
	WebhookPath   string `env:"TELEGRAM_WEBHOOK_PATH" yaml:"webhook_path" default:"/webhook"`
	WebhookSecret string `env:"TELEGRAM_WEBHOOK_SECRET" yaml:"webhook_secret"`
	AppID         int    `env:"TELEGRAM_APP_ID" yaml:"app_id" required:"true"`
	AppHash       string `env:"TELEGRAM_APP_HASH" yaml:"app_hash" required:"true"`
}

// GenerationConfig selects and configures the reply-generation backend.
type GenerationConfig struct {
	Provider string        `env:"GENERATION_PROVIDER" yaml:"provider" default:"openrouter"`
	Timeout  time.Duration `env:"GENERATION_TIMEOUT" yaml:"timeout" default:"30s"`

	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY" yaml:"openrouter_api_key"`
	OpenRouterModel   string `env:"OPENROUTER_MODEL" yaml:"openrouter_model"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" yaml:"openrouter_base_url"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY" yaml:"anthropic_api_key"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" yaml:"anthropic_model"`

	GeminiAPIKey string `env:"GEMINI_API_KEY" yaml:"gemini_api_key"`
	GeminiModel  string `env:"GEMINI_MODEL" yaml:"gemini_model"`
}

// PipelineConfig holds the message-pipeline policy knobs.
type PipelineConfig struct {
	ReplyCooldown time.Duration `env:"REPLY_COOLDOWN" yaml:"reply_cooldown" default:"5s"`
	ErrorSilence  time.Duration `env:"ERROR_SILENCE" yaml:"error_silence" default:"60s"`
	QueueDelay    time.Duration `env:"QUEUE_DELAY" yaml:"queue_delay" default:"10s"`
	DedupCapacity int           `env:"DEDUP_CAPACITY" yaml:"dedup_capacity" default:"100"`
}

// StorageConfig selects where session credentials are persisted.
type StorageConfig struct {
	Backend  string `env:"STORAGE_BACKEND" yaml:"backend" default:"local"`
	LocalDir string `env:"STORAGE_LOCAL_DIR" yaml:"local_dir" default:"./data"`
	S3Bucket string `env:"STORAGE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix string `env:"STORAGE_S3_PREFIX" yaml:"s3_prefix"`
	S3Region string `env:"STORAGE_S3_REGION" yaml:"s3_region"`
}

// MonitoringConfig controls the metrics listener.
type MonitoringConfig struct {
	MetricsEnabled bool `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
	MetricsPort    int  `env:"METRICS_PORT" yaml:"metrics_port" default:"9090"`
}

// GetAppConfig loads the application config from an optional YAML file and
// the environment.
func GetAppConfig(filepath string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := config.GetConfig(cfg, filepath, true); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate implements config.Validator.
func (c AppConfig) Validate() error {
	var result error

	switch c.Generation.Provider {
	case ProviderOpenRouter:
		if c.Generation.OpenRouterAPIKey == "" {
			result = multierror.Append(result, fmt.Errorf("OPENROUTER_API_KEY is required for provider %q", c.Generation.Provider))
		}
	case ProviderClaude:
		if c.Generation.AnthropicAPIKey == "" {
			result = multierror.Append(result, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Generation.Provider))
		}
	case ProviderGemini:
		if c.Generation.GeminiAPIKey == "" {
			result = multierror.Append(result, fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.Generation.Provider))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown generation provider %q", c.Generation.Provider))
	}

	switch c.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("STORAGE_S3_BUCKET is required for backend %q", c.Storage.Backend))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid port %d", c.Port))
	}

	return result
}

// GetLogLevel parses the configured log level, falling back to info.
func (c AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Logging.Level)
}
