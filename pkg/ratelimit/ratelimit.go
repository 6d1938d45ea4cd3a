package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision outcome of a single rate limit check
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Limiter is satisfied by both the in-process and the Redis limiter
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
}

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Allow consumes one token if available
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN consumes n tokens if all are available
func (tb *TokenBucket) AllowN(n int64) bool {
	d := tb.takeN(n)
	return d.Allowed
}

func (tb *TokenBucket) takeN(n int64) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.refill(now)
	tb.lastUsed = now

	d := Decision{Limit: int64(tb.capacity)}
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		d.Allowed = true
	}
	d.Remaining = int64(tb.tokens)
	d.ResetAt = now.Add(tb.untilNextLocked())
	return d
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// untilNextLocked time until at least one token is available
func (tb *TokenBucket) untilNextLocked() time.Duration {
	if tb.tokens >= 1 || tb.refillRate <= 0 {
		return 0
	}
	missing := 1 - tb.tokens
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

func (tb *TokenBucket) idleSince(now time.Time, d time.Duration) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastUsed) > d
}

// RateLimiter keeps one token bucket per key (client IP for the queue routes)
type RateLimiter struct {
	mu              sync.RWMutex
	buckets         map[string]*TokenBucket
	capacity        int64
	refillRate      int64
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewRateLimiter creates a limiter and starts its idle-bucket cleanup loop.
// Call Stop when done.
func NewRateLimiter(capacity, refillRate int64) *RateLimiter {
	rl := newRateLimiter(capacity, refillRate, time.Now)
	go rl.cleanupLoop()
	return rl
}

func newRateLimiter(capacity, refillRate int64, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		buckets:         make(map[string]*TokenBucket),
		capacity:        capacity,
		refillRate:      refillRate,
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     now(),
		now:             now,
		stopChan:        make(chan struct{}),
	}
}

// Allow checks if a request from the given key is allowed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getBucket(key).Allow()
}

// Take implements Limiter; it never fails
func (rl *RateLimiter) Take(_ context.Context, key string) (Decision, error) {
	return rl.getBucket(key).takeN(1), nil
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// double-check after acquiring write lock
	if bucket, exists = rl.buckets[key]; exists {
		return bucket
	}

	bucket = newTokenBucket(rl.capacity, rl.refillRate, rl.now)
	rl.buckets[key] = bucket
	return bucket
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup drops buckets unused for a full cleanup interval
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, bucket := range rl.buckets {
		if bucket.idleSince(now, rl.cleanupInterval) {
			delete(rl.buckets, key)
			removed++
		}
	}

	rl.lastCleanup = now
	return removed
}

// Reset forgets the bucket of a key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Stop ends the cleanup loop; safe to call more than once
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

type Stats struct {
	ActiveBuckets int       `json:"activeBuckets"`
	Capacity      int64     `json:"capacity"`
	RefillRate    int64     `json:"refillRate"`
	LastCleanup   time.Time `json:"lastCleanup"`
}

func (rl *RateLimiter) GetStats() Stats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return Stats{
		ActiveBuckets: len(rl.buckets),
		Capacity:      rl.capacity,
		RefillRate:    rl.refillRate,
		LastCleanup:   rl.lastCleanup,
	}
}
