// Package sources holds the storefront adapters. Every adapter exposes
// Fetch(ctx) returning normalized RawGame records; nothing here touches
// the store, committing is the importer's job.
package sources

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Adapters wrap these so the job layer can decide
// retry policy with errors.Is without knowing the source.
var (
	// ErrNotConfigured means credentials are absent. Never retried;
	// surfaced to the user as a setup prompt.
	ErrNotConfigured = errors.New("source not configured")

	// ErrAuthExpired means credentials were present but rejected. For
	// refreshable auth one automatic refresh is attempted first.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrRateLimited is HTTP 429 or equivalent. Retried with backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetwork covers timeouts and 5xx. Retried within budget.
	ErrNetwork = errors.New("network error")

	// ErrParse is a malformed response. The item is skipped, the batch
	// continues.
	ErrParse = errors.New("parse error")

	// ErrNotFound is a definitive missing upstream record, stored so it
	// is not re-queried.
	ErrNotFound = errors.New("not found upstream")

	// ErrCancelled is user-initiated cancellation.
	ErrCancelled = errors.New("cancelled")
)

// NotConfiguredError builds a wrapped ErrNotConfigured naming the store.
func NotConfiguredError(store, missing string) error {
	return fmt.Errorf("%s: missing %s: %w", store, missing, ErrNotConfigured)
}

// classifyStatus maps an HTTP status code to the error taxonomy.
func classifyStatus(store string, status int) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%s: status %d: %w", store, status, ErrAuthExpired)
	case status == 404:
		return fmt.Errorf("%s: status %d: %w", store, status, ErrNotFound)
	case status == 429:
		return fmt.Errorf("%s: status %d: %w", store, status, ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("%s: status %d: %w", store, status, ErrNetwork)
	default:
		return fmt.Errorf("%s: unexpected status %d", store, status)
	}
}
