// File: utils/lock.go
package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// LockerType names the resource family a lock protects.
type LockerType string

const (
	// LockerAccountInvoicePayments serializes invoice generation and payment
	// state transitions per account.
	LockerAccountInvoicePayments LockerType = "account-invoice-payments"
)

// ErrLockFailed is returned when the lock could not be acquired within the
// configured number of attempts. Callers treat it as "try again later".
var ErrLockFailed = fmt.Errorf("lock acquisition failed")

const lockRetryDelay = 100 * time.Millisecond

// Lock is one held lock. Release must be idempotent.
type Lock interface {
	Release(ctx context.Context)
}

// Locker hands out named, per-resource mutual-exclusion locks.
type Locker interface {
	TryAcquire(ctx context.Context, lockerType LockerType, key string, maxAttempts int) (Lock, error)
}

// LockBackend is the subset of redis commands the locker uses.
type LockBackend interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AccountLocker implements Locker on top of Redis SET NX. Locks are not
// re-entrant.
type AccountLocker struct {
	client LockBackend
	ttl    time.Duration
}

// NewAccountLocker builds a locker on top of the given Redis backend.
func NewAccountLocker(client LockBackend, ttl time.Duration) *AccountLocker {
	return &AccountLocker{client: client, ttl: ttl}
}

// TryAcquire attempts to take the lock for (lockerType, key), retrying up to
// maxAttempts times before giving up with ErrLockFailed.
func (l *AccountLocker) TryAcquire(ctx context.Context, lockerType LockerType, key string, maxAttempts int) (Lock, error) {
	redisKey := fmt.Sprintf("lock:%s:%s", lockerType, key)
	token := uuid.New().String()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", redisKey, err)
		}
		if ok {
			return &AccountLock{client: l.client, key: redisKey, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrLockFailed, redisKey, maxAttempts)
}

// AccountLock is one held lock. Release is idempotent and only deletes the
// key while it still carries this lock's token.
type AccountLock struct {
	client   LockBackend
	key      string
	token    string
	released sync.Once
}

// Release frees the lock. Safe to call more than once.
func (l *AccountLock) Release(ctx context.Context) {
	l.released.Do(func() {
		current, err := l.client.Get(ctx, l.key).Result()
		if err != nil || current != l.token {
			return // expired or taken over, nothing to delete
		}
		l.client.Del(ctx, l.key)
	})
}
