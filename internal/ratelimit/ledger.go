// Package ratelimit keeps the per-client sliding windows used by admission.
package ratelimit

import (
	"context"
	"time"
)

// Ledger records admitted requests per client. Allow is atomic per client: two
// concurrent calls for the same client never both take the last slot.
type Ledger interface {
	// Allow reports whether client may make a request at now. When it may, now
	// is recorded against the client's window.
	Allow(ctx context.Context, client string, now time.Time) (bool, error)
	// Backend names the storage, for health output.
	Backend() string
}

// Default budget per client.
const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

func normalize(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return limit, window
}
