package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Lock a held Redis lock; only the token that set it can release it
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Locker hands out SET NX locks. Replicas use it to serialize one-off
// startup work such as schema creation.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &Locker{client: client, prefix: prefix}
}

// Acquire tries once; ErrLockNotAcquired means someone else holds it
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		client: l.client,
		key:    l.prefix + name,
		token:  uuid.NewString(),
	}

	ok, err := l.client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return lock, nil
}

// AcquireWait retries every interval until the lock is free or ctx ends
func (l *Locker) AcquireWait(ctx context.Context, name string, ttl, interval time.Duration) (*Lock, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lock, err := l.Acquire(ctx, name, ttl)
		if !errors.Is(err, ErrLockNotAcquired) {
			return lock, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WithLock runs fn while holding name. The lock is released even if fn fails.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := l.AcquireWait(ctx, name, ttl, 100*time.Millisecond)
	if err != nil {
		return err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}

// Release deletes the key if this lock still owns it
func (lk *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Held reports whether the key still carries this lock's token
func (lk *Lock) Held(ctx context.Context) (bool, error) {
	v, err := lk.client.Get(ctx, lk.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == lk.token, nil
}
