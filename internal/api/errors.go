package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/quizrun-api/internal/api/shared"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/queue"
	"github.com/phrazzld/quizrun-api/internal/service/auth"
	"github.com/phrazzld/quizrun-api/internal/store"
	"github.com/phrazzld/quizrun-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, auth.ErrUnknownPrincipal):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrUnknownTaskType),
		errors.Is(err, domain.ErrInvalidTaskStatus),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, task.ErrInvalidRequest),
		errors.Is(err, shared.ErrEmptyBody),
		errors.As(err, &verrs):
		return http.StatusBadRequest

	// Upstream errors
	case errors.Is(err, queue.ErrDispatchFailed):
		return http.StatusBadGateway
	case errors.Is(err, provider.ErrNoProviderConfigured),
		errors.Is(err, provider.ErrNoHealthyProvider):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, auth.ErrUnknownPrincipal):
		return "Caller is not allowed"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrQuestionNotFound):
		return "Question not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, domain.ErrInvalidTransition):
		return "Task cannot change to the requested status"
	case errors.Is(err, domain.ErrUnknownTaskType):
		return "Unknown task type"
	case errors.Is(err, domain.ErrInvalidTaskStatus):
		return "Unknown task status"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.As(err, &verrs):
		return SanitizeValidationError(err)
	case errors.Is(err, task.ErrInvalidRequest),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, queue.ErrDispatchFailed):
		return "Task could not be queued"
	case errors.Is(err, provider.ErrNoProviderConfigured):
		return "No AI provider is configured"
	case errors.Is(err, provider.ErrNoHealthyProvider):
		return "No AI provider is available"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message naming the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", lowerFirst(fe.Field()), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gt", "gte":
		return "too small"
	case "max", "lt", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "must be a UUID"
	default:
		return "validation failed"
	}
}

// HandleAPIError maps err to a status code and safe message and writes the
// response. A non-empty fallback replaces the generic 5xx message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status >= http.StatusInternalServerError && fallback != "" && message == "An unexpected error occurred" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
