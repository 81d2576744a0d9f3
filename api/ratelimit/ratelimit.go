// Package ratelimit implements token-bucket rate limiting keyed by string.
// Buckets refill lazily on each Allow call; there is no background timer.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a keyed action may proceed right now
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Rule describes a token bucket: Rate tokens per Per, with capacity Burst.
// A zero Burst defaults to Rate.
type Rule struct {
	Rate  int
	Per   time.Duration
	Burst int
}

func (r Rule) burst() int {
	if r.Burst <= 0 {
		return r.Rate
	}
	return r.Burst
}

// refillInterval is the time it takes to earn one token back
func (r Rule) refillInterval() time.Duration {
	return r.Per / time.Duration(r.Rate)
}

type bucket struct {
	tokens    int
	updatedAt time.Time
}

// MemoryLimiter is a process-local token bucket map. It is exact only when a
// given key's traffic lands on a single instance; multi-instance deployments
// should use RedisLimiter instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	rule    Rule
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process limiter for the given rule
func NewMemoryLimiter(rule Rule) *MemoryLimiter {
	return &MemoryLimiter{
		rule:    rule,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from the key's bucket if any are available. An
// unseen key starts with a full bucket.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.rule.burst(), updatedAt: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.updatedAt)
		refilled := int(elapsed / l.rule.refillInterval())
		if b.tokens+refilled > l.rule.burst() {
			b.tokens = l.rule.burst()
		} else {
			b.tokens += refilled
		}
		b.updatedAt = now
	}

	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Sweep drops buckets that have been idle for at least idleFor and returns
// how many were removed. An idle bucket is indistinguishable from an unseen
// key, so dropping it is safe.
func (l *MemoryLimiter) Sweep(idleFor time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleFor)
	removed := 0
	for key, b := range l.buckets {
		if b.updatedAt.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
