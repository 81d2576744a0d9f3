package grants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_ConsumeIsSingleUse(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	err := s.Grant(context.Background(), "sess1", "user1", DefaultTTL)
	assert.NoError(t, err)

	consumed, err := s.Consume(context.Background(), "sess1", "user1")
	assert.NoError(t, err)
	assert.True(t, consumed)

	// the grant is gone after the first consume
	consumed, err = s.Consume(context.Background(), "sess1", "user1")
	assert.NoError(t, err)
	assert.False(t, consumed)
}

func TestMemoryStore_ExpiredGrantBehavesLikeMissing(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	assert.NoError(t, s.Grant(context.Background(), "sess1", "user1", time.Minute))

	now = now.Add(time.Minute + time.Second)
	consumed, err := s.Consume(context.Background(), "sess1", "user1")
	assert.NoError(t, err)
	assert.False(t, consumed)
}

func TestMemoryStore_GrantIsScopedToSessionAndUser(t *testing.T) {
	s := NewMemoryStore()

	assert.NoError(t, s.Grant(context.Background(), "sess1", "user1", DefaultTTL))

	consumed, _ := s.Consume(context.Background(), "sess2", "user1")
	assert.False(t, consumed, "grant must not apply to another session")
	consumed, _ = s.Consume(context.Background(), "sess1", "user2")
	assert.False(t, consumed, "grant must not apply to another user")

	consumed, _ = s.Consume(context.Background(), "sess1", "user1")
	assert.True(t, consumed)
}

func TestMemoryStore_RegrantReplacesExisting(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	assert.NoError(t, s.Grant(context.Background(), "sess1", "user1", time.Minute))
	now = now.Add(50 * time.Second)

	// a second grant resets the clock
	assert.NoError(t, s.Grant(context.Background(), "sess1", "user1", time.Minute))
	now = now.Add(30 * time.Second)

	consumed, err := s.Consume(context.Background(), "sess1", "user1")
	assert.NoError(t, err)
	assert.True(t, consumed)
}

func TestMemoryStore_ZeroTTLUsesDefault(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	assert.NoError(t, s.Grant(context.Background(), "sess1", "user1", 0))

	now = now.Add(DefaultTTL - time.Second)
	consumed, _ := s.Consume(context.Background(), "sess1", "user1")
	assert.True(t, consumed)
}

func TestMemoryStore_SweepDropsOnlyExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	s.Grant(context.Background(), "sess1", "expired", time.Minute)
	s.Grant(context.Background(), "sess1", "live", time.Hour)

	now = now.Add(2 * time.Minute)
	removed := s.Sweep()
	assert.Equal(t, 1, removed)

	consumed, _ := s.Consume(context.Background(), "sess1", "live")
	assert.True(t, consumed)
}
