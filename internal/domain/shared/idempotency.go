package shared

import (
	"context"
	"time"
)

// IdempotencyStore records payment idempotency keys so that a duplicate
// submission can be rejected before a transaction is even opened. The store
// is a fast-path filter only; the authoritative duplicate check is the
// unique-key lookup performed inside the payment transaction.
type IdempotencyStore interface {
	// MarkProcessed marks a key as seen with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been seen
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for seen keys. After this duration the
	// database unique constraint remains the only guard.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether the fast-path check is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
