package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/quizrun-api/internal/api/shared"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate validates user tokens from the Authorization header and adds
// the claims to the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(w, r)
		if !ok {
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			respondTokenError(w, r, err)
			return
		}

		ctx := shared.WithClaims(r.Context(), claims)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With(slog.String("user_id", claims.UserID.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated users without the admin role. It must
// run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := shared.ClaimsFrom(r.Context())
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !claims.IsAdmin() {
			shared.RespondWithError(w, r, http.StatusForbidden, "Administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireServiceIdentity admits only callers presenting an identity token
// for an allowed service principal. It guards the worker endpoint.
func RequireServiceIdentity(verifier auth.IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(w, r)
			if !ok {
				return
			}

			id, err := verifier.VerifyIdentity(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, auth.ErrUnknownPrincipal) {
					status = http.StatusForbidden
				}
				shared.RespondWithErrorAndLog(w, r, status, "Invalid identity token", err, shared.WithElevatedLogLevel())
				return
			}

			ctx := shared.WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
		return "", false
	}
	return strings.TrimSpace(token), true
}

func respondTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingToken):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
	}
}
