package permits

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "vehicle-1")
	require.NoError(t, err)

	// a different key is independent
	unlockOther, err := k.Lock(ctx, "vehicle-2")
	require.NoError(t, err)
	unlockOther()

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(timeout, "vehicle-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock, err = k.Lock(ctx, "vehicle-1")
	require.NoError(t, err)
	unlock()
}

func TestKeyedMutexSerializes(t *testing.T) {
	k := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "vehicle")
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func heldKeys(k *KeyedMutex) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func TestKeyedMutexDropsReleasedKeys(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "vehicle-1")
	require.NoError(t, err)
	assert.Equal(t, 1, heldKeys(k))

	timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(timeout, "vehicle-1")
	require.Error(t, err)
	assert.Equal(t, 1, heldKeys(k))

	unlock()
	unlock()
	assert.Equal(t, 0, heldKeys(k))

	for i := 0; i < 100; i++ {
		unlock, err := k.Lock(ctx, fmt.Sprintf("vehicle-%d", i))
		require.NoError(t, err)
		unlock()
	}
	assert.Equal(t, 0, heldKeys(k))
}

func TestNewRedisLocker(t *testing.T) {
	_, err := NewRedisLocker("not a url", 0)
	assert.Error(t, err)

	l, err := NewRedisLocker("redis://localhost:6379/0", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLockTTL, l.TTL)

	l, err = NewRedisLocker("redis://localhost:6379/0", 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, l.TTL)
}

func TestRedisLockerUnreachable(t *testing.T) {
	l, err := NewRedisLocker("redis://127.0.0.1:1/0", time.Second)
	require.NoError(t, err)
	defer l.Client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = l.Lock(ctx, "vehicle-1")
	assert.Error(t, err)
}
