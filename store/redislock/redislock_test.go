package redislock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/store/redislock"
)

func newLocker(t *testing.T, opts ...redislock.Option) (*redislock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	opts = append([]redislock.Option{redislock.WithPollInterval(time.Millisecond)}, opts...)
	return redislock.New(client, opts...), mr
}

func TestLocker_SerializesSameKey(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "balance:alice/cp/2025")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}

func TestLocker_SetsTTLAndReleases(t *testing.T) {
	l, mr := newLocker(t, redislock.WithTTL(5*time.Second))

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, 5*time.Second, mr.TTL(keys[0]))

	unlock()
	unlock() // second call is a no-op
	assert.Empty(t, mr.Keys())
}

func TestLocker_ContextDeadline(t *testing.T) {
	l, _ := newLocker(t)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_ExpiredLockIsNotReleasedByFormerHolder(t *testing.T) {
	// GIVEN: A lock that expired and was taken by another holder
	// WHEN: The former holder unlocks
	// THEN: The new holder keeps the key

	l, mr := newLocker(t, redislock.WithTTL(time.Second))
	ctx := context.Background()

	stale, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	current, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	defer current()

	stale()

	assert.Len(t, mr.Keys(), 1)
}

func TestLocker_Unreachable(t *testing.T) {
	l, mr := newLocker(t)
	mr.Close()

	_, err := l.Lock(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, l.Ping(context.Background()))
}
