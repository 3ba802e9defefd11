package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-approval/internal/workflow"
)

func newTestLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, 5*time.Second, wait, nil), mr
}

func TestRedisLockerExcludesAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "ticket:serial:20240101")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ticket:serial:20240101"))
	assert.Equal(t, 5*time.Second, mr.TTL("ticket:serial:20240101"))

	_, err = locker.Lock(ctx, "ticket:serial:20240101")
	assert.ErrorIs(t, err, workflow.ErrLockTimeout)

	other, err := locker.Lock(ctx, "ticket:serial:20240102")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("ticket:serial:20240101"))

	again, err := locker.Lock(ctx, "ticket:serial:20240101")
	require.NoError(t, err)
	again()
}

func TestRedisLockerLeavesForeignLock(t *testing.T) {
	locker, mr := newTestLocker(t, 50*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Our lease expired and another holder took the key.
	mr.FastForward(6 * time.Second)
	require.NoError(t, mr.Set("k", "someone-else"))

	unlock()
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	locker, _ := newTestLocker(t, time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		unlock()
	}()

	second, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	second()
}

func TestRedisLockerHonoursContext(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, workflow.ErrLockTimeout)
}
