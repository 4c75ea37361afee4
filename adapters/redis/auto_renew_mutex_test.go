package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoRenewMutex_LockUnlock(t *testing.T) {
	client, mr := setupTest(t)

	mutex := NewAutoRenewMutex(client, "test-lock")
	lockCtx, err := mutex.Lock(context.Background())
	require.NoError(t, err)
	assert.True(t, mutex.Valid())
	assert.True(t, mr.Exists("test-lock"))

	ok, err := mutex.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mutex.Valid())
	assert.False(t, mr.Exists("test-lock"))

	select {
	case <-lockCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("釋放鎖後context應該被取消")
	}
}

func TestAutoRenewMutex_TryLock(t *testing.T) {
	client, _ := setupTest(t)

	holder := NewAutoRenewMutex(client, "test-lock")
	_, err := holder.TryLock(context.Background())
	require.NoError(t, err)

	other := NewAutoRenewMutex(client, "test-lock")
	_, err = other.TryLock(context.Background())
	assert.ErrorIs(t, err, ErrLockTaken)

	_, err = holder.Unlock()
	require.NoError(t, err)

	_, err = other.TryLock(context.Background())
	require.NoError(t, err)
	_, err = other.Unlock()
	require.NoError(t, err)
}

func TestAutoRenewMutex_LockWaitsForRelease(t *testing.T) {
	client, _ := setupTest(t)
	factory := NewMutexFactory(client, "lock:", WithAutoRenewMutexRetryDelay(20*time.Millisecond))

	holder := factory.NewMutex("artwork")
	_, err := holder.Lock(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		holder.Unlock()
	}()

	waiter := factory.NewMutex("artwork")
	_, err = waiter.Lock(context.Background())
	require.NoError(t, err)
	_, err = waiter.Unlock()
	require.NoError(t, err)
}

func TestAutoRenewMutex_LockContextCancelled(t *testing.T) {
	client, _ := setupTest(t)
	factory := NewMutexFactory(client, "lock:", WithAutoRenewMutexRetryDelay(20*time.Millisecond))

	holder := factory.NewMutex("artwork")
	_, err := holder.Lock(context.Background())
	require.NoError(t, err)
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = factory.NewMutex("artwork").Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAutoRenewMutex_LockWithWait(t *testing.T) {
	client, mr := setupTest(t)
	factory := NewMutexFactory(client, "lock:",
		WithAutoRenewMutexExpiry(time.Second),
		WithAutoRenewMutexRenewInterval(50*time.Millisecond),
		WithAutoRenewMutexRetryDelay(10*time.Millisecond),
	)

	holder := factory.NewMutex("artwork")
	lockCtx, err := holder.LockWithWait(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	defer holder.Unlock()

	// 等待時限過去後仍要持續續期，總共快轉超過一次過期時間
	for range 4 {
		time.Sleep(150 * time.Millisecond)
		mr.FastForward(400 * time.Millisecond)
	}
	assert.True(t, mr.Exists("lock:artwork"))
	assert.True(t, holder.Valid())
	assert.NoError(t, lockCtx.Err())

	_, err = factory.NewMutex("artwork").TryLock(context.Background())
	assert.ErrorIs(t, err, ErrLockTaken)
}

func TestAutoRenewMutex_LockWithWaitTimeout(t *testing.T) {
	client, _ := setupTest(t)
	factory := NewMutexFactory(client, "lock:", WithAutoRenewMutexRetryDelay(20*time.Millisecond))

	holder := factory.NewMutex("artwork")
	_, err := holder.Lock(context.Background())
	require.NoError(t, err)
	defer holder.Unlock()

	start := time.Now()
	_, err = factory.NewMutex("artwork").LockWithWait(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockWaitTimeout)
	assert.Less(t, time.Since(start), time.Second)
}
