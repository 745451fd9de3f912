// Package provider describes the external AI services the application talks
// to. Each service is wrapped in a Provider whose adapter implements only the
// capability interfaces the service supports. The Registry decides which
// providers may serve a purpose, and RunWithFallback tries them one at a time
// until one succeeds.
package provider
