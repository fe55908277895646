package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/response"
)

// AnswerService is the write-behind answer buffer. Saves land in the cache
// only; the sync scheduler reconciles them to the store later. Every key a
// save touches carries the same sliding TTL so an abandoned run evaporates
// on its own.
type AnswerService struct {
	rdb    *redis.Client
	ttl    time.Duration
	pusher *Pusher
	log    zerolog.Logger
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(rdb *redis.Client, cfg *config.Config, pusher *Pusher, log zerolog.Logger) *AnswerService {
	return &AnswerService{
		rdb:    rdb,
		ttl:    cfg.AnswerTTL,
		pusher: pusher,
		log:    log.With().Str("component", "answer_service").Logger(),
	}
}

// SaveAnswer buffers one answer in the cache and recomputes the participant's
// progress. The dirty set marks the question for the next sync tick.
func (s *AnswerService) SaveAnswer(ctx context.Context, token string, examRecordID, questionID int64, answer string) (int64, error) {
	qid := strconv.FormatInt(questionID, 10)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.AnswerKey(token, examRecordID, questionID), answer, s.ttl)

	answeredKey := config.CacheKey.AnsweredSetKey(token, examRecordID)
	pipe.SAdd(ctx, answeredKey, qid)
	pipe.Expire(ctx, answeredKey, s.ttl)

	dirtyKey := config.CacheKey.DirtySetKey(token, examRecordID)
	pipe.SAdd(ctx, dirtyKey, qid)
	pipe.Expire(ctx, dirtyKey, s.ttl)

	progressCmd := pipe.SCard(ctx, answeredKey)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Int64("exam_record_id", examRecordID).Msg("Answer buffer write failed")
		return 0, response.ErrCacheUnavailable
	}

	progress := progressCmd.Val()
	if err := s.rdb.Set(ctx, config.CacheKey.ProgressKey(examRecordID), progress, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Int64("exam_record_id", examRecordID).Msg("Progress counter write failed")
	}

	s.pusher.PushProgress(ctx, examRecordID, progress)
	return progress, nil
}

// GetAnswer returns the buffered answer for one question, or "" with false
// when nothing is buffered.
func (s *AnswerService) GetAnswer(ctx context.Context, token string, examRecordID, questionID int64) (string, bool, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.AnswerKey(token, examRecordID, questionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get buffered answer: %w", err)
	}
	return val, true, nil
}

// GetProgress returns the participant's answered-question count. A missing
// counter reads as zero.
func (s *AnswerService) GetProgress(ctx context.Context, examRecordID int64) (int64, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.ProgressKey(examRecordID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get progress: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// AnsweredQuestionIDs returns every question ID the participant has buffered
// an answer for.
func (s *AnswerService) AnsweredQuestionIDs(ctx context.Context, token string, examRecordID int64) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, config.CacheKey.AnsweredSetKey(token, examRecordID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list answered questions: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CleanupParticipant drops a participant's tracking keys after submission.
// Answer cells are left to expire on their own TTL; only the sets and the
// progress counter go immediately.
func (s *AnswerService) CleanupParticipant(ctx context.Context, token string, examRecordID int64) error {
	keys := []string{
		config.CacheKey.AnsweredSetKey(token, examRecordID),
		config.CacheKey.DirtySetKey(token, examRecordID),
		config.CacheKey.ProgressKey(examRecordID),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cleanup participant keys: %w", err)
	}
	return nil
}
