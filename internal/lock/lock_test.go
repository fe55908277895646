package lock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edukit/examgate-backend/internal/response"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewService(rdb, zerolog.Nop()), server
}

func TestTryLockMutualExclusion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fence, err := svc.TryLock(ctx, "lock:exam:start:1:2", 10*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, fence)

	second, err := svc.TryLock(ctx, "lock:exam:start:1:2", 10*time.Second)
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestReleaseRequiresMatchingFence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fence, err := svc.TryLock(ctx, "lock:exam:token:1:2", 10*time.Second)
	require.NoError(t, err)

	require.False(t, svc.Release(ctx, "lock:exam:token:1:2", "not-the-fence"))
	require.True(t, svc.Release(ctx, "lock:exam:token:1:2", fence))

	// Released: a new holder can acquire.
	next, err := svc.TryLock(ctx, "lock:exam:token:1:2", 10*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, next)
}

func TestWithLockFailsFastWhenHeld(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	fence, err := svc.TryLock(ctx, "lock:held", 10*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, fence)

	err = svc.WithLock(ctx, "lock:held", 10*time.Second, func() error { return nil })
	require.ErrorIs(t, err, response.ErrLockUnavailable)
}

func TestWithLockWaitingAcquiresAfterExpiry(t *testing.T) {
	svc, server := newTestService(t)
	ctx := context.Background()

	_, err := svc.TryLock(ctx, "lock:waited", 200*time.Millisecond)
	require.NoError(t, err)

	// miniredis only advances TTLs via FastForward.
	go func() {
		time.Sleep(80 * time.Millisecond)
		server.FastForward(time.Second)
	}()

	called := false
	err = svc.WithLockWaiting(ctx, "lock:waited", 10*time.Second, 2*time.Second, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
}

func TestWithLockWaitingHonoursWaitBudget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.TryLock(ctx, "lock:budget", time.Minute)
	require.NoError(t, err)

	start := time.Now()
	err = svc.WithLockWaiting(ctx, "lock:budget", 10*time.Second, 150*time.Millisecond, func() error { return nil })
	require.ErrorIs(t, err, response.ErrLockUnavailable)
	require.Less(t, time.Since(start), time.Second)
}

func TestWithLockWaitingRespectsCancellation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.TryLock(context.Background(), "lock:cancel", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(60 * time.Millisecond)
		cancel()
	}()

	err = svc.WithLockWaiting(ctx, "lock:cancel", 10*time.Second, time.Minute, func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithLockReleasesAfterFn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.WithLock(ctx, "lock:reuse", 10*time.Second, func() error { return nil })
	require.NoError(t, err)

	// The lock must be free again immediately.
	err = svc.WithLock(ctx, "lock:reuse", 10*time.Second, func() error { return nil })
	require.NoError(t, err)
}
