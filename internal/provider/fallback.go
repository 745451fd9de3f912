package provider

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/phrazzld/quizrun-api/internal/platform/logger"
)

type fallbackOptions struct {
	intn func(n int) int
	op   string
}

// FallbackOption configures RunWithFallback.
type FallbackOption func(*fallbackOptions)

// WithRand makes the provider shuffle draw from r.
func WithRand(r *rand.Rand) FallbackOption {
	return func(o *fallbackOptions) {
		o.intn = r.IntN
	}
}

// WithOperation names the call in failure logs.
func WithOperation(op string) FallbackOption {
	return func(o *fallbackOptions) {
		o.op = op
	}
}

// RunWithFallback calls providers implementing capability C one at a time
// until a call succeeds. The preferred provider, when present, goes first;
// the rest are shuffled per call so load spreads across providers. Failures
// are logged and never retried within a call. When every provider fails the
// zero result, a nil provider and false are returned.
func RunWithFallback[C, R any](
	ctx context.Context,
	providers []*Provider,
	preferred string,
	call func(ctx context.Context, c C) (R, error),
	opts ...FallbackOption,
) (R, *Provider, bool) {
	o := fallbackOptions{intn: rand.IntN, op: "call"}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.FromContext(ctx)

	var zero R
	for _, p := range orderProviders[C](providers, preferred, o.intn) {
		if ctx.Err() != nil {
			return zero, nil, false
		}

		c, _ := Capability[C](p)
		result, err := call(ctx, c)
		if err != nil {
			perr := &ProviderError{Provider: p.Name, Op: o.op, Err: err}
			log.Warn("provider call failed, trying next provider",
				slog.String("provider", p.Name),
				slog.String("operation", o.op),
				slog.String("error", perr.Error()))
			continue
		}
		return result, p, true
	}

	log.Error("no provider could serve the request",
		slog.String("operation", o.op),
		slog.Int("providers", len(providers)))
	return zero, nil, false
}

// orderProviders keeps the providers implementing C, shuffles them with
// Fisher-Yates and moves preferred to the front.
func orderProviders[C any](providers []*Provider, preferred string, intn func(int) int) []*Provider {
	var first *Provider
	rest := make([]*Provider, 0, len(providers))
	for _, p := range providers {
		if _, ok := Capability[C](p); !ok {
			continue
		}
		if preferred != "" && p.Name == preferred && first == nil {
			first = p
			continue
		}
		rest = append(rest, p)
	}

	for i := len(rest) - 1; i > 0; i-- {
		j := intn(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}

	if first == nil {
		return rest
	}
	return append([]*Provider{first}, rest...)
}
