package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/quizrun-api/internal/config"
	"github.com/phrazzld/quizrun-api/internal/generation"
	"github.com/phrazzld/quizrun-api/internal/platform/gemini"
	"github.com/phrazzld/quizrun-api/internal/platform/openai"
	"github.com/phrazzld/quizrun-api/internal/provider"
)

// retryDelay is the base backoff between attempts of one provider call.
const retryDelay = time.Second

// buildProviders creates every provider in priority order: gemini, openai,
// mistral. Providers without an API key are registered unconfigured so
// health reports list them.
func buildProviders(ctx context.Context, cfg config.ProvidersConfig, logger *slog.Logger) ([]*provider.Provider, error) {
	type entry struct {
		name string
		pc   config.ProviderConfig
		dial func() (generation.Completer, error)
	}
	entries := []entry{
		{"gemini", cfg.Gemini, func() (generation.Completer, error) {
			return gemini.New(ctx, gemini.Config{
				APIKey:  cfg.Gemini.APIKey,
				Model:   cfg.Gemini.Model,
				Timeout: cfg.CallTimeout,
			}, logger)
		}},
		{"openai", cfg.OpenAI, func() (generation.Completer, error) {
			return openai.New(openai.Config{
				Name:    "openai",
				APIKey:  cfg.OpenAI.APIKey,
				Model:   cfg.OpenAI.Model,
				BaseURL: cfg.OpenAI.BaseURL,
				Timeout: cfg.CallTimeout,
			}, logger)
		}},
		{"mistral", cfg.Mistral, func() (generation.Completer, error) {
			return openai.New(openai.Config{
				Name:    "mistral",
				APIKey:  cfg.Mistral.APIKey,
				Model:   cfg.Mistral.Model,
				BaseURL: cfg.Mistral.BaseURL,
				Timeout: cfg.CallTimeout,
			}, logger)
		}},
	}

	providers := make([]*provider.Provider, 0, len(entries))
	for _, e := range entries {
		purposes := toPurposes(e.pc.Purposes)
		if !e.pc.Configured() {
			providers = append(providers, provider.New(e.name, e.pc.Model, false, nil, purposes...))
			continue
		}

		completer, err := e.dial()
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", e.name, err)
		}
		adapter, err := generation.NewAdapter(e.name, completer, logger,
			generation.WithRetry(cfg.MaxRetries, retryDelay))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter: %w", e.name, err)
		}
		providers = append(providers, provider.New(e.name, e.pc.Model, true, adapter, purposes...))
		logger.Info("AI provider configured",
			slog.String("provider", e.name),
			slog.String("model", e.pc.Model),
			slog.Any("purposes", e.pc.Purposes))
	}
	return providers, nil
}

func toPurposes(names []string) []provider.Purpose {
	purposes := make([]provider.Purpose, 0, len(names))
	for _, n := range names {
		purposes = append(purposes, provider.Purpose(n))
	}
	return purposes
}
