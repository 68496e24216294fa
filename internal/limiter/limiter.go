// Package limiter throttles failed password attempts against the bridge.
package limiter

import (
	"context"
	"time"
)

// Limiter controls bridge credential checks and temporary lockouts per
// (owner, client IP).
type Limiter interface {
	// Allow reports whether a credential check is currently permitted and an
	// optional retry-after duration.
	Allow(ctx context.Context, ownerID string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful credential check.
	Success(ctx context.Context, ownerID string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, ownerID string, ipHash []byte) (bool, time.Duration, error)
}
