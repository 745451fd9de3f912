package gemini

import (
	"fmt"
	"strings"

	"github.com/phrazzld/quizrun-api/internal/generation"
)

// validateConfig checks the credential and fills in defaults.
func validateConfig(cfg Config) (Config, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg, nil
}
