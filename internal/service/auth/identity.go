package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"google.golang.org/api/idtoken"
)

// DefaultIdentityLifetime bounds how long a minted identity token is valid.
// Tokens are minted per delivery attempt.
const DefaultIdentityLifetime = 5 * time.Minute

// Identity is the verified caller of a worker endpoint.
type Identity struct {
	Principal string
	Audience  string
}

// IdentityVerifier checks the bearer token presented by the delivery queue.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (*Identity, error)
}

// LocalIdentity mints and verifies HMAC identity tokens for the in-process
// queue. The key is derived from the JWT secret with its own purpose.
type LocalIdentity struct {
	key        []byte
	audience   string
	principals map[string]bool
	lifetime   time.Duration
	timeFunc   func() time.Time
}

var _ IdentityVerifier = (*LocalIdentity)(nil)

// NewLocalIdentity creates a LocalIdentity accepting tokens for audience
// issued to one of principals.
func NewLocalIdentity(secret, audience string, principals ...string) (*LocalIdentity, error) {
	key, err := deriveKey(secret, purposeServiceIdentity)
	if err != nil {
		return nil, err
	}
	return &LocalIdentity{
		key:        key,
		audience:   audience,
		principals: principalSet(principals),
		lifetime:   DefaultIdentityLifetime,
		timeFunc:   time.Now,
	}, nil
}

// Token mints an identity token for principal, valid for audience.
func (l *LocalIdentity) Token(ctx context.Context, audience, principal string) (string, error) {
	now := l.timeFunc()
	claims := jwtCustomClaims{
		TokenType: tokenTypeIdentity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.lifetime)),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, nil
}

// VerifyIdentity implements IdentityVerifier.
func (l *LocalIdentity) VerifyIdentity(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := parseHMAC(token, l.key, l.timeFunc(), DefaultClockSkew, jwt.WithAudience(l.audience))
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeIdentity {
		return nil, ErrWrongTokenType
	}
	if !l.principals[claims.Subject] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrincipal, claims.Subject)
	}
	return &Identity{Principal: claims.Subject, Audience: l.audience}, nil
}

// GoogleIdentity verifies Google-signed OIDC tokens, as attached by Cloud
// Tasks to HTTP deliveries.
type GoogleIdentity struct {
	audience   string
	principals map[string]bool
	validate   func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

var _ IdentityVerifier = (*GoogleIdentity)(nil)

// NewGoogleIdentity creates a GoogleIdentity accepting tokens for audience
// whose email claim is one of principals.
func NewGoogleIdentity(audience string, principals ...string) *GoogleIdentity {
	return &GoogleIdentity{
		audience:   audience,
		principals: principalSet(principals),
		validate:   idtoken.Validate,
	}
}

// VerifyIdentity implements IdentityVerifier.
func (g *GoogleIdentity) VerifyIdentity(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	payload, err := g.validate(ctx, token, g.audience)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email, _ := payload.Claims["email"].(string)
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("%w: email %q is not verified", ErrInvalidToken, email)
	}
	if !g.principals[email] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrincipal, email)
	}
	return &Identity{Principal: email, Audience: payload.Audience}, nil
}

func principalSet(principals []string) map[string]bool {
	set := make(map[string]bool, len(principals))
	for _, p := range principals {
		if p != "" {
			set[p] = true
		}
	}
	return set
}
