package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/response"
)

// pollInterval is how often the waiting variant retries acquisition.
const pollInterval = 50 * time.Millisecond

// releaseScript deletes the lock only when the stored fence matches, so a
// holder whose TTL expired cannot delete a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
else
    return 0
end`)

// Service provides Redis-backed mutual exclusion with fenced release.
type Service struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewService creates a lock Service.
func NewService(rdb *redis.Client, log zerolog.Logger) *Service {
	return &Service{
		rdb: rdb,
		log: log.With().Str("component", "lock").Logger(),
	}
}

// TryLock attempts a single set-if-absent acquisition. It returns the fence
// value on success and "" when the key is already held.
func (s *Service) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	fence := uuid.New().String()
	ok, err := s.rdb.SetNX(ctx, key, fence, ttl).Result()
	if err != nil {
		return "", response.ErrCacheUnavailable
	}
	if !ok {
		return "", nil
	}
	return fence, nil
}

// TryLockWaiting retries acquisition every pollInterval until maxWait elapses
// or ctx is cancelled.
func (s *Service) TryLockWaiting(ctx context.Context, key string, ttl, maxWait time.Duration) (string, error) {
	deadline := time.Now().Add(maxWait)
	for {
		fence, err := s.TryLock(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if fence != "" {
			return fence, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release deletes the lock if the fence still matches. A mismatch means the
// lock expired and was taken over; that is logged but not surfaced, since the
// guarded operation already completed.
func (s *Service) Release(ctx context.Context, key, fence string) bool {
	if key == "" || fence == "" {
		return false
	}
	n, err := releaseScript.Run(ctx, s.rdb, []string{key}, fence).Int64()
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Lock release failed")
		return false
	}
	if n == 0 {
		s.log.Warn().Str("key", key).Msg("Lock lost before release (TTL expired?)")
		return false
	}
	return true
}

// WithLock runs fn while holding the lock, failing fast when it is held.
func (s *Service) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	fence, err := s.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if fence == "" {
		return response.ErrLockUnavailable
	}
	defer s.Release(ctx, key, fence)

	return fn()
}

// WithLockWaiting runs fn while holding the lock, polling up to maxWait for
// acquisition. Cancellation of ctx aborts the wait promptly.
func (s *Service) WithLockWaiting(ctx context.Context, key string, ttl, maxWait time.Duration, fn func() error) error {
	fence, err := s.TryLockWaiting(ctx, key, ttl, maxWait)
	if err != nil {
		return err
	}
	if fence == "" {
		return response.ErrLockUnavailable
	}
	defer s.Release(ctx, key, fence)

	return fn()
}
