package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/quizrun-api/internal/api/shared"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/provider"
)

// ProviderStatus reports cached provider health.
type ProviderStatus interface {
	Status(ctx context.Context) provider.Snapshot
	Invalidate()
}

var _ ProviderStatus = (*provider.Registry)(nil)

// ProviderHandler serves AI provider health.
type ProviderHandler struct {
	status ProviderStatus
	logger *slog.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(status ProviderStatus, logger *slog.Logger) *ProviderHandler {
	if status == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("provider status cannot be nil for ProviderHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderHandler{
		status: status,
		logger: logger.With(slog.String("component", "provider_handler")),
	}
}

// Health handles GET /api/providers/health. refresh=true discards the
// cached snapshot and probes every provider again.
func (h *ProviderHandler) Health(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid refresh: must be true or false")
			return
		}
		if refresh {
			logger.FromContextOrDefault(r.Context(), h.logger).Info("provider health refresh requested")
			h.status.Invalidate()
		}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, h.status.Status(r.Context()))
}
