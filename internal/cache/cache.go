// Package cache maps presented tokens to the id of the user they resolved to.
//
// An entry never outlives the instant it was stored with: readers treat an
// entry past its expiry as a miss. Keys are token fingerprints, raw tokens are
// never kept.
package cache

import (
	"context"
	"time"
)

// Store is implemented by Memory and Redis.
// Implementations must be safe for concurrent use. Backend failures are logged
// and reported as misses.
type Store interface {
	// Get returns the user id cached for token.
	Get(ctx context.Context, token string) (string, bool)

	// Set caches userID for token until expiresAt. Entries already expired are ignored.
	Set(ctx context.Context, token, userID string, expiresAt time.Time)

	// Delete evicts token.
	Delete(ctx context.Context, token string)
}
