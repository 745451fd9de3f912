package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roles carried by user tokens
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// JWTService defines operations for managing user access tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for the user with the given role.
	GenerateToken(ctx context.Context, userID uuid.UUID, role string) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, ErrWrongTokenType or
	// ErrInvalidToken when validation fails.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated claims of a user access token.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Role is RoleUser or RoleAdmin. Admins may use the operator endpoints.
	Role string `json:"role,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// IsAdmin reports whether the claims grant operator access.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
