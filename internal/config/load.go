package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. QUIZ_DATABASE_URL.
const EnvPrefix = "QUIZ"

// ConfigFileEnv names an optional config file. Without it ./config.yaml is
// read when present.
const ConfigFileEnv = "QUIZ_CONFIG"

var allPurposes = []string{"generation", "validation", "migration", "illustration"}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	models := map[string]string{
		"gemini":  "gemini-2.0-flash",
		"openai":  "gpt-4o-mini",
		"mistral": "mistral-small-latest",
	}
	for name, model := range models {
		v.SetDefault("providers."+name+".api_key", "")
		v.SetDefault("providers."+name+".model", model)
		v.SetDefault("providers."+name+".base_url", "")
		v.SetDefault("providers."+name+".purposes", allPurposes)
	}
	v.SetDefault("providers.mistral.base_url", "https://api.mistral.ai/v1/")
	v.SetDefault("providers.status_ttl", 60*time.Second)
	v.SetDefault("providers.call_timeout", 30*time.Second)
	v.SetDefault("providers.max_retries", 1)

	v.SetDefault("queue.mode", QueueModeLocal)
	v.SetDefault("queue.project_id", "")
	v.SetDefault("queue.location", "")
	v.SetDefault("queue.prefix", "quiz")
	v.SetDefault("queue.worker_url", "http://localhost:8080/worker/tasks")
	v.SetDefault("queue.service_account", "tasks@quizrun.local")
	v.SetDefault("queue.dispatch_delay", 5*time.Second)
	v.SetDefault("queue.max_dispatches_per_second", 5.0)
	v.SetDefault("queue.max_concurrent", 10)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.max_retry_duration", time.Hour)
	v.SetDefault("queue.min_backoff", 10*time.Second)
	v.SetDefault("queue.max_backoff", 5*time.Minute)

	v.SetDefault("task.reap_interval", 5*time.Minute)
	v.SetDefault("task.batch_size", 400)
}
