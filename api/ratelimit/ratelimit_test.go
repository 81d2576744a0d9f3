package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiter_BurstThenReject(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Rate: 1, Per: time.Second, Burst: 3})
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(context.Background(), "chat:s1:u1")
		assert.NoError(t, err)
		assert.True(t, allowed, "request %d should be within burst", i+1)
	}

	allowed, err := l.Allow(context.Background(), "chat:s1:u1")
	assert.NoError(t, err)
	assert.False(t, allowed, "fourth immediate request should be rejected")
}

func TestMemoryLimiter_RefillAfterInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Rate: 1, Per: time.Second, Burst: 3})
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow(context.Background(), "k")
		assert.True(t, allowed)
	}
	allowed, _ := l.Allow(context.Background(), "k")
	assert.False(t, allowed)

	// one refill interval later exactly one token is back
	now = now.Add(time.Second)
	allowed, _ = l.Allow(context.Background(), "k")
	assert.True(t, allowed)
	allowed, _ = l.Allow(context.Background(), "k")
	assert.False(t, allowed)
}

func TestMemoryLimiter_PartialElapsedEarnsNothing(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Rate: 1, Per: time.Second, Burst: 1})
	l.now = func() time.Time { return now }

	allowed, _ := l.Allow(context.Background(), "k")
	assert.True(t, allowed)

	// 999ms is still short of one refill interval
	now = now.Add(999 * time.Millisecond)
	allowed, _ = l.Allow(context.Background(), "k")
	assert.False(t, allowed)

	// a rejected call still advances the bucket clock, so the interval
	// restarts from the probe, not from the original spend
	now = now.Add(time.Millisecond)
	allowed, _ = l.Allow(context.Background(), "k")
	assert.False(t, allowed)

	now = now.Add(time.Second)
	allowed, _ = l.Allow(context.Background(), "k")
	assert.True(t, allowed)
}

func TestMemoryLimiter_RefillCapsAtBurst(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Rate: 1, Per: time.Second, Burst: 2})
	l.now = func() time.Time { return now }

	allowed, _ := l.Allow(context.Background(), "k")
	assert.True(t, allowed)

	// a long idle stretch must not accumulate more than the burst capacity
	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		allowed, _ = l.Allow(context.Background(), "k")
		assert.True(t, allowed)
	}
	allowed, _ = l.Allow(context.Background(), "k")
	assert.False(t, allowed)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Rate: 1, Per: time.Second, Burst: 1})
	l.now = func() time.Time { return now }

	allowed, _ := l.Allow(context.Background(), "chat:s1:u1")
	assert.True(t, allowed)
	allowed, _ = l.Allow(context.Background(), "chat:s1:u1")
	assert.False(t, allowed)

	// a different caller in the same session has its own bucket
	allowed, _ = l.Allow(context.Background(), "chat:s1:u2")
	assert.True(t, allowed)
}

func TestMemoryLimiter_ZeroBurstDefaultsToRate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Rate: 2, Per: time.Minute})
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		allowed, _ := l.Allow(context.Background(), "k")
		assert.True(t, allowed)
	}
	allowed, _ := l.Allow(context.Background(), "k")
	assert.False(t, allowed)
}

func TestMemoryLimiter_SweepDropsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Rate: 1, Per: time.Second, Burst: 1})
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "old")
	now = now.Add(30 * time.Minute)
	l.Allow(context.Background(), "fresh")

	removed := l.Sweep(10 * time.Minute)
	assert.Equal(t, 1, removed)

	// swept key behaves like an unseen one: full bucket again
	allowed, _ := l.Allow(context.Background(), "old")
	assert.True(t, allowed)
}
