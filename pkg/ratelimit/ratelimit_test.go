package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(5, 1, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, bucket.Allow(), "6th request should be denied")

	clock.Advance(time.Second)
	assert.True(t, bucket.Allow(), "request after refill should be allowed")
	assert.False(t, bucket.Allow())
}

func TestTokenBucket_AllowN(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(10, 2, clock.Now)

	assert.True(t, bucket.AllowN(10))
	assert.False(t, bucket.AllowN(1))

	clock.Advance(time.Second)
	assert.True(t, bucket.AllowN(2))
	assert.False(t, bucket.AllowN(1))
}

func TestTokenBucket_PartialRefillAccumulates(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(1, 2, clock.Now)

	require.True(t, bucket.Allow())

	// 250ms at 2/s is half a token
	clock.Advance(250 * time.Millisecond)
	assert.False(t, bucket.Allow())

	clock.Advance(250 * time.Millisecond)
	assert.True(t, bucket.Allow())
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	clock := newFakeClock()
	bucket := newTokenBucket(3, 10, clock.Now)

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, bucket.Allow())
	}
	assert.False(t, bucket.Allow())
}

func TestRateLimiter_Take(t *testing.T) {
	clock := newFakeClock()
	limiter := newRateLimiter(3, 1, clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Take(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(3), d.Limit)
		assert.Equal(t, int64(2-i), d.Remaining)
	}

	d, err := limiter.Take(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Second), d.ResetAt)

	d, err = limiter.Take(ctx, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "different key has its own bucket")
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := newRateLimiter(2, 1, newFakeClock().Now)

	limiter.Allow("test")
	limiter.Allow("test")
	require.False(t, limiter.Allow("test"))

	limiter.Reset("test")
	assert.True(t, limiter.Allow("test"))
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	clock := newFakeClock()
	limiter := newRateLimiter(2, 1, clock.Now)

	limiter.Allow("idle")
	clock.Advance(5 * time.Minute)
	limiter.Allow("busy")
	clock.Advance(6 * time.Minute)

	assert.Equal(t, 1, limiter.cleanup())
	stats := limiter.GetStats()
	assert.Equal(t, 1, stats.ActiveBuckets)
	assert.Equal(t, clock.Now(), stats.LastCleanup)
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(100, 10)
	defer limiter.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if limiter.Allow("concurrent") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, limiter.GetStats().ActiveBuckets)
	assert.GreaterOrEqual(t, allowed, 100)
	assert.Less(t, allowed, 200)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func BenchmarkRateLimiter_Take(b *testing.B) {
	limiter := NewRateLimiter(1000000, 100000)
	defer limiter.Stop()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = limiter.Take(ctx, "bench")
	}
}
