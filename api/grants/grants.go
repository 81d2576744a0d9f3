// Package grants holds single-use, time-boxed promotion grants. A grant lets
// one viewer obtain publisher role on their next join request; consuming it
// removes it, and an expired grant behaves exactly like a missing one.
package grants

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a promotion grant stays consumable
const DefaultTTL = 2 * time.Minute

// Store is the promotion grant store
type Store interface {
	Grant(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	Consume(ctx context.Context, sessionID, userID string) (bool, error)
}

// MemoryStore keeps grants in process-local memory. Exact single-use
// semantics hold only when a session's joins land on one instance; use
// RedisStore otherwise.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an in-process grant store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func grantKey(sessionID, userID string) string {
	return sessionID + ":" + userID
}

// Grant replaces any existing grant for (sessionID, userID) with a fresh one
func (s *MemoryStore) Grant(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[grantKey(sessionID, userID)] = s.now().Add(ttl)
	return nil
}

// Consume removes the grant for (sessionID, userID) and reports whether an
// unexpired one existed. Never-granted and expired are indistinguishable.
func (s *MemoryStore) Consume(ctx context.Context, sessionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey(sessionID, userID)
	expiresAt, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	if !expiresAt.After(s.now()) {
		return false, nil
	}
	return true, nil
}

// Sweep drops expired grants and returns how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, expiresAt := range s.entries {
		if !expiresAt.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
