package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Health cache defaults
const (
	DefaultStatusTTL    = 60 * time.Second
	DefaultProbeTimeout = 10 * time.Second
)

// HealthCheckUnsupported is the status error of an adapter that cannot be
// probed. Such a provider is never reported available.
const HealthCheckUnsupported = "health check not supported"

// ProviderStatus is the health of a single provider.
type ProviderStatus struct {
	Configured bool   `json:"configured"`
	Available  bool   `json:"available"`
	Model      string `json:"model,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Snapshot is the health of every registered provider at CheckedAt.
type Snapshot struct {
	Providers       map[string]ProviderStatus `json:"providers"`
	PrimaryProvider string                    `json:"primaryProvider"`
	Message         string                    `json:"message"`
	CheckedAt       time.Time                 `json:"checkedAt"`
}

// Available reports whether the named provider passed its last probe.
func (s Snapshot) Available(name string) bool {
	return s.Providers[name].Available
}

// StatusCache probes providers and caches the resulting snapshot for a TTL.
// Concurrent callers that miss the cache share one in-flight probe.
type StatusCache struct {
	providers    []*Provider
	ttl          time.Duration
	probeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
	group    singleflight.Group
}

// NewStatusCache creates a cache over providers, which must be in priority
// order. A zero ttl selects DefaultStatusTTL.
func NewStatusCache(providers []*Provider, ttl time.Duration, logger *slog.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCache{
		providers:    providers,
		ttl:          ttl,
		probeTimeout: DefaultProbeTimeout,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "provider_status")),
	}
}

// Get returns the cached snapshot, probing when it is missing or stale.
func (c *StatusCache) Get(ctx context.Context) Snapshot {
	if snap, ok := c.fresh(); ok {
		return snap
	}

	v, _, _ := c.group.Do("status", func() (any, error) {
		if snap, ok := c.fresh(); ok {
			return snap, nil
		}
		// The probe outlives a cancelled caller; other callers may be waiting on it.
		snap := c.probeAll(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.snapshot = &snap
		c.mu.Unlock()
		return snap, nil
	})
	return v.(Snapshot).clone()
}

// Invalidate drops the cached snapshot so the next Get probes again.
func (c *StatusCache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

func (c *StatusCache) fresh() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil || c.now().Sub(c.snapshot.CheckedAt) >= c.ttl {
		return Snapshot{}, false
	}
	return c.snapshot.clone(), true
}

func (c *StatusCache) probeAll(ctx context.Context) Snapshot {
	statuses := make([]ProviderStatus, len(c.providers))

	var g errgroup.Group
	for i, p := range c.providers {
		statuses[i] = ProviderStatus{Configured: p.Configured, Model: p.Model}
		if !p.Configured {
			continue
		}
		g.Go(func() error {
			statuses[i].Available, statuses[i].Error = c.probe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	snap := Snapshot{
		Providers: make(map[string]ProviderStatus, len(c.providers)),
		CheckedAt: c.now(),
	}
	configured := 0
	for i, p := range c.providers {
		snap.Providers[p.Name] = statuses[i]
		if statuses[i].Configured {
			configured++
		}
		if snap.PrimaryProvider == "" && statuses[i].Available {
			snap.PrimaryProvider = p.Name
		}
	}
	snap.Message = statusMessage(snap.PrimaryProvider, configured)

	c.logger.Info("provider health probed",
		slog.String("primary_provider", snap.PrimaryProvider),
		slog.Int("configured", configured))
	return snap
}

func (c *StatusCache) probe(ctx context.Context, p *Provider) (bool, string) {
	prober, ok := Capability[Prober](p)
	if !ok {
		return false, HealthCheckUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := prober.Probe(ctx); err != nil {
		c.logger.Warn("provider probe failed",
			slog.String("provider", p.Name),
			slog.String("error", err.Error()))
		return false, err.Error()
	}
	return true, ""
}

func statusMessage(primary string, configured int) string {
	switch {
	case configured == 0:
		return "No AI provider is configured. Add an API key for at least one provider."
	case primary == "":
		return "AI providers are configured but none is responding right now."
	default:
		return fmt.Sprintf("%s is available and will be tried first.", primary)
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Providers = make(map[string]ProviderStatus, len(s.Providers))
	for k, v := range s.Providers {
		out.Providers[k] = v
	}
	return out
}
