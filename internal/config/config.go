package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// TokenLifetime returns the user token lifetime.
func (a AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(a.TokenLifetimeMinutes) * time.Minute
}

// ProvidersConfig contains the AI provider settings. Providers are tried
// in the order gemini, openai, mistral.
type ProvidersConfig struct {
	Gemini      ProviderConfig `mapstructure:"gemini"`
	OpenAI      ProviderConfig `mapstructure:"openai"`
	Mistral     ProviderConfig `mapstructure:"mistral"`
	StatusTTL   time.Duration  `mapstructure:"status_ttl" validate:"gt=0"`
	CallTimeout time.Duration  `mapstructure:"call_timeout" validate:"gt=0"`
	MaxRetries  int            `mapstructure:"max_retries" validate:"gte=0,lte=5"`
}

// ProviderConfig holds one provider's credential, model and purposes.
// A provider without an API key is registered but never selected.
type ProviderConfig struct {
	APIKey   string   `mapstructure:"api_key"`
	Model    string   `mapstructure:"model"`
	BaseURL  string   `mapstructure:"base_url" validate:"omitempty,url"`
	Purposes []string `mapstructure:"purposes" validate:"dive,oneof=generation validation migration illustration"`
}

// Configured reports whether the provider has a credential.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != ""
}

// Queue modes
const (
	QueueModeLocal      = "local"
	QueueModeCloudTasks = "cloudtasks"
)

// QueueConfig contains the delivery queue settings.
type QueueConfig struct {
	Mode           string        `mapstructure:"mode" validate:"required,oneof=local cloudtasks"`
	ProjectID      string        `mapstructure:"project_id" validate:"required_if=Mode cloudtasks"`
	Location       string        `mapstructure:"location" validate:"required_if=Mode cloudtasks"`
	Prefix         string        `mapstructure:"prefix" validate:"required,alphanum"`
	WorkerURL      string        `mapstructure:"worker_url" validate:"required,url"`
	ServiceAccount string        `mapstructure:"service_account" validate:"required"`
	DispatchDelay  time.Duration `mapstructure:"dispatch_delay" validate:"gte=0"`

	MaxDispatchesPerSecond float64       `mapstructure:"max_dispatches_per_second" validate:"gt=0"`
	MaxConcurrent          int           `mapstructure:"max_concurrent" validate:"gt=0"`
	MaxAttempts            int           `mapstructure:"max_attempts" validate:"gt=0"`
	MaxRetryDuration       time.Duration `mapstructure:"max_retry_duration" validate:"gt=0"`
	MinBackoff             time.Duration `mapstructure:"min_backoff" validate:"gt=0"`
	MaxBackoff             time.Duration `mapstructure:"max_backoff" validate:"gtefield=MinBackoff"`
}

// TaskConfig contains task lifecycle settings.
type TaskConfig struct {
	ReapInterval time.Duration `mapstructure:"reap_interval" validate:"gt=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gt=0,lte=500"`
}
