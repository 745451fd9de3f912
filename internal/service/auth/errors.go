package auth

import "errors"

var (
	// ErrInvalidToken indicates the token is malformed, has a bad signature or wrong claims
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrWrongTokenType indicates a valid token was presented where another kind is required
	ErrWrongTokenType = errors.New("wrong authentication token type")

	// ErrUnknownPrincipal indicates an identity token for a principal that may not call the worker
	ErrUnknownPrincipal = errors.New("identity token issued for an unknown principal")

	// ErrWeakSecret indicates the configured signing secret is too short
	ErrWeakSecret = errors.New("jwt secret must be at least 32 characters")
)
