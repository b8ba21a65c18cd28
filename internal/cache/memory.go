package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/authgate/authgate/internal/token"
)

// DefaultSize is the number of entries kept by a Memory store created with size 0.
const DefaultSize = 10000

type entry struct {
	userID    string
	expiresAt time.Time
}

// Memory is a bounded in-process Store. The least recently used entry is
// dropped when the store is full.
type Memory struct {
	entries *lru.Cache[string, entry]
	now     func() time.Time
}

// NewMemory creates a Memory store holding at most size entries.
func NewMemory(size int, now func() time.Time) (*Memory, error) {
	if size <= 0 {
		size = DefaultSize
	}

	if now == nil {
		now = time.Now
	}

	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}

	return &Memory{entries: entries, now: now}, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, tok string) (string, bool) {
	key := token.Fingerprint(tok)

	e, ok := m.entries.Get(key)
	if !ok {
		return "", false
	}

	if !m.now().Before(e.expiresAt) {
		m.entries.Remove(key)

		return "", false
	}

	return e.userID, true
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, tok, userID string, expiresAt time.Time) {
	if !m.now().Before(expiresAt) {
		return
	}

	m.entries.Add(token.Fingerprint(tok), entry{userID: userID, expiresAt: expiresAt})
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, tok string) {
	m.entries.Remove(token.Fingerprint(tok))
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	return m.entries.Len()
}
