package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/quizrun-api/internal/api/shared"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/task"
)

// AdminHandler exposes the operator controls. Routes are expected to sit
// behind RequireAdmin.
type AdminHandler struct {
	service TaskService
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service TaskService, logger *slog.Logger) *AdminHandler {
	if service == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for AdminHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		service: service,
		logger:  logger.With(slog.String("component", "admin_handler")),
	}
}

// ReapResponse reports a reaping pass.
type ReapResponse struct {
	task.ReapResult
	Total int `json:"total"`
}

// Cancel handles POST /api/admin/tasks/cancel.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req TaskIDsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.service.Cancel(r.Context(), req.IDs...)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel tasks")
		return
	}
	h.audit(r, "cancel", result)
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Delete handles POST /api/admin/tasks/delete.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req TaskIDsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.service.Delete(r.Context(), req.IDs...)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to delete tasks")
		return
	}
	h.audit(r, "delete", result)
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Cleanup handles POST /api/admin/tasks/cleanup.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.service.DeleteOlderThan(r.Context(), req.OlderThanHours)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to clean up tasks")
		return
	}
	h.audit(r, "cleanup", result)
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Reap handles POST /api/admin/tasks/reap.
func (h *AdminHandler) Reap(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ReapStuck(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reap tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ReapResponse{ReapResult: result, Total: result.Total()})
}

func (h *AdminHandler) audit(r *http.Request, op string, result task.OperationResult) {
	attrs := []any{
		slog.String("operation", op),
		slog.Int("requested", result.Requested),
		slog.Int("affected", result.Affected),
	}
	if claims, ok := shared.ClaimsFrom(r.Context()); ok {
		attrs = append(attrs, slog.String("admin_id", claims.UserID.String()))
	}
	logger.FromContextOrDefault(r.Context(), h.logger).Info("operator control applied", attrs...)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
