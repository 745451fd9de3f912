package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProviderConfigured is returned when no provider holds a credential
	// and is enabled for the requested purpose. Tasks fail immediately on it.
	ErrNoProviderConfigured = errors.New("no AI provider configured")

	// ErrNoHealthyProvider is returned when a purpose requires confirmed
	// health and no configured provider passed its last probe.
	ErrNoHealthyProvider = errors.New("no healthy AI provider available")
)

// ProviderError records a single provider call failure.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
