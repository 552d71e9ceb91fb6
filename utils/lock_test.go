package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLockBackend is an in-memory stand-in for the redis commands the locker
// uses.
type fakeLockBackend struct {
	mu         sync.Mutex
	values     map[string]string
	setNXCalls int
	delCalls   int
}

func newFakeLockBackend() *fakeLockBackend {
	return &fakeLockBackend{values: make(map[string]string)}
}

func (b *fakeLockBackend) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setNXCalls++
	if _, held := b.values[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	b.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (b *fakeLockBackend) Get(ctx context.Context, key string) *redis.StringCmd {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (b *fakeLockBackend) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delCalls++
	var deleted int64
	for _, key := range keys {
		if _, ok := b.values[key]; ok {
			delete(b.values, key)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

func (b *fakeLockBackend) holds(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.values[key]
	return ok
}

const testLockKey = "lock:account-invoice-payments:acct-1"

func TestTryAcquireAndRelease(t *testing.T) {
	backend := newFakeLockBackend()
	locker := NewAccountLocker(backend, time.Minute)
	ctx := context.Background()

	lock, err := locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)
	assert.True(t, backend.holds(testLockKey))

	lock.Release(ctx)
	assert.False(t, backend.holds(testLockKey))

	// Free again, so a fresh acquire succeeds on the first attempt.
	_, err = locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)
}

func TestTryAcquireContention(t *testing.T) {
	backend := newFakeLockBackend()
	locker := NewAccountLocker(backend, time.Minute)
	ctx := context.Background()

	_, err := locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)

	_, err = locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 2)
	require.ErrorIs(t, err, ErrLockFailed)
	assert.Equal(t, 3, backend.setNXCalls, "one successful acquire plus two failed attempts")
}

func TestTryAcquireDifferentKeysDoNotContend(t *testing.T) {
	backend := newFakeLockBackend()
	locker := NewAccountLocker(backend, time.Minute)
	ctx := context.Background()

	_, err := locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)
	_, err = locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-2", 1)
	require.NoError(t, err)
}

func TestReleaseIsIdempotent(t *testing.T) {
	backend := newFakeLockBackend()
	locker := NewAccountLocker(backend, time.Minute)
	ctx := context.Background()

	lock, err := locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)

	lock.Release(ctx)
	lock.Release(ctx)
	assert.Equal(t, 1, backend.delCalls)
}

func TestReleaseOnlyDeletesOwnToken(t *testing.T) {
	backend := newFakeLockBackend()
	locker := NewAccountLocker(backend, time.Minute)
	ctx := context.Background()

	stale, err := locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)

	// The TTL fires and another holder takes over.
	backend.mu.Lock()
	delete(backend.values, testLockKey)
	backend.mu.Unlock()
	_, err = locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)

	// The stale holder's release must not free the new holder's lock.
	stale.Release(ctx)
	assert.True(t, backend.holds(testLockKey))
	assert.Equal(t, 0, backend.delCalls)
}

func TestTryAcquireHonorsContextCancellation(t *testing.T) {
	backend := newFakeLockBackend()
	locker := NewAccountLocker(backend, time.Minute)

	_, err := locker.TryAcquire(context.Background(), LockerAccountInvoicePayments, "acct-1", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.TryAcquire(ctx, LockerAccountInvoicePayments, "acct-1", 5)
	require.ErrorIs(t, err, context.Canceled)
}
