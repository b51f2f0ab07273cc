package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisRequestLocker(client, 5*time.Second)
}

func TestWithRequestLock_ReleasesAfterRun(t *testing.T) {
	mr, locker := newTestLocker(t)

	ran := false
	err := locker.WithRequestLock(context.Background(), 42, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:request:42"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:request:42"))
}

func TestWithRequestLock_SecondCallerRejected(t *testing.T) {
	_, locker := newTestLocker(t)

	err := locker.WithRequestLock(context.Background(), 7, func(ctx context.Context) error {
		inner := locker.WithRequestLock(ctx, 7, func(context.Context) error {
			t.Fatal("nested lock on the same request must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		// a different request is independent
		return locker.WithRequestLock(ctx, 8, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestWithRequestLock_PropagatesError(t *testing.T) {
	mr, locker := newTestLocker(t)
	boom := errors.New("boom")

	err := locker.WithRequestLock(context.Background(), 1, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:request:1"))
}

func TestRelease_LeavesForeignToken(t *testing.T) {
	mr, locker := newTestLocker(t)
	rl := locker.(*redisRequestLocker)

	require.NoError(t, mr.Set("lock:request:9", "someone-else"))
	require.NoError(t, rl.release(context.Background(), "lock:request:9", "mine"))

	got, err := mr.Get("lock:request:9")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
