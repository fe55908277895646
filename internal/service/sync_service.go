package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/repository"
)

// answerStore is the slice of the answer repository the sync path needs.
type answerStore interface {
	GetByRecordAndQuestion(ctx context.Context, examRecordID, questionID int64) (*model.AnswerRecord, error)
	SyncBatch(ctx context.Context, inserts, updates []model.AnswerRecord) error
}

// SyncService reconciles the cache-side answer buffer into the store. Each
// tick scans for dirty sets, diffs the buffered cells against persisted rows,
// and applies the diff in one transaction per participant.
type SyncService struct {
	rdb     *redis.Client
	answers answerStore
	log     zerolog.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(rdb *redis.Client, answers answerStore, log zerolog.Logger) *SyncService {
	return &SyncService{
		rdb:     rdb,
		answers: answers,
		log:     log.With().Str("component", "sync_service").Logger(),
	}
}

// SyncDirtySets drains every pending-sync set. A participant whose sync fails
// keeps their dirty set, so the next tick retries them without losing data.
func (s *SyncService) SyncDirtySets(ctx context.Context) error {
	var synced, failed int

	iter := s.rdb.Scan(ctx, 0, config.DirtySetPattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		token, examRecordID, ok := parseDirtyKey(key)
		if !ok {
			s.log.Warn().Str("key", key).Msg("Malformed dirty set key, dropping")
			s.rdb.Del(ctx, key)
			continue
		}

		if err := s.syncParticipant(ctx, key, token, examRecordID, false); err != nil {
			s.log.Error().Err(err).Int64("exam_record_id", examRecordID).Msg("Participant sync failed")
			failed++
			continue
		}
		synced++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan dirty sets: %w", err)
	}

	if synced > 0 || failed > 0 {
		s.log.Info().Int("synced", synced).Int("failed", failed).Msg("Answer sync tick complete")
	}
	return nil
}

// ForceSyncAll flushes every buffered answer of one participant to the store,
// regardless of dirtiness. Runs before final submission so the persisted rows
// are complete.
func (s *SyncService) ForceSyncAll(ctx context.Context, token string, examRecordID int64) error {
	answeredKey := config.CacheKey.AnsweredSetKey(token, examRecordID)
	dirtyKey := config.CacheKey.DirtySetKey(token, examRecordID)

	if err := s.syncQuestionSet(ctx, answeredKey, token, examRecordID, true); err != nil {
		return err
	}
	return s.rdb.Del(ctx, dirtyKey).Err()
}

// CleanupStaleDirtyKeys removes dirty sets that somehow lost their TTL, so
// the scan space cannot grow without bound.
func (s *SyncService) CleanupStaleDirtyKeys(ctx context.Context) error {
	var removed int

	iter := s.rdb.Scan(ctx, 0, config.DirtySetPattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := s.rdb.TTL(ctx, key).Result()
		if err != nil {
			continue
		}
		// TTL reports -1 for a key without expiry and -2 for a key that
		// vanished mid-scan, both as raw negative durations.
		if ttl < 0 && ttl != -2*time.Nanosecond {
			if err := s.rdb.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan stale dirty sets: %w", err)
	}

	if removed > 0 {
		s.log.Warn().Int("removed", removed).Msg("Removed dirty sets without TTL")
	}
	return nil
}

// syncParticipant flushes one dirty set and deletes it on success.
func (s *SyncService) syncParticipant(ctx context.Context, dirtyKey, token string, examRecordID int64, force bool) error {
	if err := s.syncQuestionSet(ctx, dirtyKey, token, examRecordID, force); err != nil {
		return err
	}
	return s.rdb.Del(ctx, dirtyKey).Err()
}

// syncQuestionSet diffs the buffered cells named by a question-ID set against
// the store and applies the result as one batch. With force set, existing
// rows are rewritten even when the answer has not changed.
func (s *SyncService) syncQuestionSet(ctx context.Context, setKey, token string, examRecordID int64, force bool) error {
	members, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read question set: %w", err)
	}
	if len(members) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	var inserts, updates []model.AnswerRecord

	for _, member := range members {
		questionID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}

		answer, err := s.rdb.Get(ctx, config.CacheKey.AnswerKey(token, examRecordID, questionID)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Cell expired before sync; nothing to persist.
				continue
			}
			return fmt.Errorf("read answer cell q=%d: %w", questionID, err)
		}

		rec := model.AnswerRecord{
			ExamRecordID:  examRecordID,
			QuestionID:    questionID,
			StudentAnswer: answer,
			AnswerTime:    now,
		}

		existing, err := s.answers.GetByRecordAndQuestion(ctx, examRecordID, questionID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			inserts = append(inserts, rec)
		case err != nil:
			return fmt.Errorf("lookup persisted answer q=%d: %w", questionID, err)
		case force || existing.StudentAnswer != answer:
			updates = append(updates, rec)
		}
	}

	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}
	if err := s.answers.SyncBatch(ctx, inserts, updates); err != nil {
		return fmt.Errorf("apply answer batch: %w", err)
	}

	s.log.Debug().
		Int64("exam_record_id", examRecordID).
		Int("inserts", len(inserts)).
		Int("updates", len(updates)).
		Msg("Answers persisted")
	return nil
}

// parseDirtyKey extracts the token and record ID from a pending-sync set key.
func parseDirtyKey(key string) (token string, examRecordID int64, ok bool) {
	rest := strings.TrimPrefix(key, config.DirtySetPrefix)
	if rest == key {
		return "", 0, false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[0], id, true
}
