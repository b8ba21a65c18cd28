package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultStateTTL is how long an OAuth2 state parameter stays redeemable.
const DefaultStateTTL = 5 * time.Minute

// States is an in-process key value storage with the method set of the
// gofiber storage drivers. It holds OAuth2 state parameters when no SQL
// backed storage is configured. Every entry lives for the TTL given to
// NewStates, the expiry passed to Set is ignored.
type States struct {
	entries *expirable.LRU[string, []byte]
}

// NewStates creates a States storage holding at most size entries for ttl.
func NewStates(size int, ttl time.Duration) *States {
	if size <= 0 {
		size = DefaultSize
	}

	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	return &States{entries: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns the value of key, nil when it is unknown or expired.
func (s *States) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	v, _ := s.entries.Get(key)

	return v, nil
}

// Set stores val under key.
func (s *States) Set(key string, val []byte, _ time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}

	s.entries.Add(key, val)

	return nil
}

// Delete removes key.
func (s *States) Delete(key string) error {
	s.entries.Remove(key)

	return nil
}

// Reset removes every entry.
func (s *States) Reset() error {
	s.entries.Purge()

	return nil
}

// Close is a no-op.
func (s *States) Close() error {
	return nil
}
