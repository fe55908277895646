package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/response"
)

// TokenService issues and validates per-exam entry tokens. The token doubles
// as the cache namespace for a run's participant data, so reissuing a token
// cleanly partitions a new run from stale entries.
type TokenService struct {
	rdb      *redis.Client
	graceTTL time.Duration
	log      zerolog.Logger
}

// NewTokenService creates a new TokenService.
func NewTokenService(rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *TokenService {
	return &TokenService{
		rdb:      rdb,
		graceTTL: cfg.TokenGraceTTL,
		log:      log.With().Str("component", "token_service").Logger(),
	}
}

// Issue mints a fresh opaque token for an exam, replacing any prior token.
// TTL runs until one grace period past the exam end, with the grace period
// itself as the floor so validation keeps working briefly after expiry.
func (s *TokenService) Issue(ctx context.Context, examID int64, endTime time.Time) (string, error) {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")

	ttl := time.Until(endTime.Add(s.graceTTL))
	if ttl < s.graceTTL {
		ttl = s.graceTTL
	}

	if err := s.rdb.Set(ctx, config.CacheKey.ExamTokenKey(examID), token, ttl).Err(); err != nil {
		return "", response.ErrCacheUnavailable
	}

	s.log.Info().Int64("exam_id", examID).Dur("ttl", ttl).Msg("Exam token issued")
	return token, nil
}

// Validate reports whether the token matches the exam's active token. A
// missing or expired token yields false, never an error the caller must
// distinguish. Comparison is constant-time.
func (s *TokenService) Validate(ctx context.Context, examID int64, token string) bool {
	if token == "" {
		return false
	}
	stored, err := s.rdb.Get(ctx, config.CacheKey.ExamTokenKey(examID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Error().Err(err).Int64("exam_id", examID).Msg("Token lookup failed")
		}
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1
}

// Get returns the exam's active token, or "" when none exists.
func (s *TokenService) Get(ctx context.Context, examID int64) (string, error) {
	token, err := s.rdb.Get(ctx, config.CacheKey.ExamTokenKey(examID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get exam token: %w", err)
	}
	return token, nil
}

// Has reports whether the exam currently has an active token.
func (s *TokenService) Has(ctx context.Context, examID int64) (bool, error) {
	n, err := s.rdb.Exists(ctx, config.CacheKey.ExamTokenKey(examID)).Result()
	if err != nil {
		return false, fmt.Errorf("check exam token: %w", err)
	}
	return n > 0, nil
}

// Revoke deletes the exam's token. Called once the submit queue drains.
func (s *TokenService) Revoke(ctx context.Context, examID int64) error {
	if err := s.rdb.Del(ctx, config.CacheKey.ExamTokenKey(examID)).Err(); err != nil {
		return fmt.Errorf("revoke exam token: %w", err)
	}
	s.log.Info().Int64("exam_id", examID).Msg("Exam token revoked")
	return nil
}
