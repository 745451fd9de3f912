package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Registry holds the process's providers in fixed priority order.
type Registry struct {
	providers []*Provider
	status    *StatusCache
	logger    *slog.Logger
}

// NewRegistry creates a registry. Providers are tried for health and listed
// in the order given.
func NewRegistry(logger *slog.Logger, statusTTL time.Duration, providers ...*Provider) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: providers,
		status:    NewStatusCache(providers, statusTTL, logger),
		logger:    logger.With(slog.String("component", "provider_registry")),
	}
}

// Providers returns every registered provider in priority order.
func (r *Registry) Providers() []*Provider {
	out := make([]*Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Lookup returns the provider with the given name.
func (r *Registry) Lookup(name string) (*Provider, bool) {
	for _, p := range r.providers {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// ForPurpose returns the providers usable for purpose in priority order.
// A provider is usable when it has a credential and is enabled for the
// purpose. Health is advisory except for migration, where a categorization
// permanently rewrites content and only confirmed healthy providers qualify.
func (r *Registry) ForPurpose(ctx context.Context, purpose Purpose) ([]*Provider, error) {
	var usable []*Provider
	for _, p := range r.providers {
		if p.Configured && p.EnabledFor(purpose) {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoProviderConfigured, purpose)
	}

	if purpose != PurposeMigration {
		return usable, nil
	}

	snap := r.status.Get(ctx)
	healthy := usable[:0:0]
	for _, p := range usable {
		if snap.Available(p.Name) {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) == 0 {
		r.logger.Warn("no healthy provider for migration",
			slog.Any("configured", Names(usable)))
		return nil, fmt.Errorf("%w for %s", ErrNoHealthyProvider, purpose)
	}
	return healthy, nil
}

// Status returns the cached provider health snapshot.
func (r *Registry) Status(ctx context.Context) Snapshot {
	return r.status.Get(ctx)
}

// Invalidate drops the cached health snapshot.
func (r *Registry) Invalidate() {
	r.status.Invalidate()
}
