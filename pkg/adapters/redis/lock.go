package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
	// ErrLockLost is returned when a held lock expired or was taken by someone else.
	ErrLockLost = errors.New("distributed lock lost")
)

// UnlockFunc releases a lock.
type UnlockFunc func(ctx context.Context) error

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const refreshScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Locker is a Redis SET NX PX lock.
type Locker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		poll:   100 * time.Millisecond,
	}
}

// Lease is a held lock. Its owner token guards Refresh and Unlock so an expired
// lease never touches a lock re-acquired by someone else.
type Lease struct {
	client *backend.Client
	key    string
	token  string
	ttl    time.Duration
}

// TTL is the expiry the lease is (re)armed with.
func (l *Lease) TTL() time.Duration { return l.ttl }

// Refresh pushes the expiry back to a full TTL. It returns ErrLockLost when the
// key no longer carries this lease's token.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := l.client.Eval(ctx, refreshScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis error refreshing lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Unlock releases the lease if it is still held.
func (l *Lease) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Err()
}

// KeepAlive refreshes the lease every ttl/3 until ctx is done. It returns nil
// on cancellation and the refresh error once the lease cannot be kept.
func (l *Lease) KeepAlive(ctx context.Context) error {
	every := l.ttl / 3
	if every <= 0 {
		every = time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := l.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// TryAcquire makes a single attempt and returns ErrLockAcquire when the key is held.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{
		client: l.client,
		key:    l.prefix + "lock:" + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error acquiring lock: %w", err)
	}
	if !ok {
		return nil, ErrLockAcquire
	}
	return lease, nil
}

// Acquire polls until the lock is acquired or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		lease, err := l.TryAcquire(ctx, key, ttl)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrLockAcquire) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TryLock is TryAcquire for callers that only need to release the lock.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lease, err := l.TryAcquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lease.Unlock, nil
}

// Lock is Acquire for callers that only need to release the lock.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lease.Unlock, nil
}
