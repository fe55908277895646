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

// submitRecordStore is the slice of the exam record repository the
// submission pipeline needs.
type submitRecordStore interface {
	ListInProgressByExam(ctx context.Context, examID int64) ([]model.ExamRecord, error)
	MarkSubmitted(ctx context.Context, id int64, status model.RecordStatus, submitTime time.Time) error
}

// SubmitService drives mass submission when an exam ends. Each finished exam
// gets a FIFO queue of its in_progress participants; drain ticks work the
// queues in bounded batches so a large cohort never lands on the store at
// once. The exam token is revoked only after the queue empties, because the
// token still namespaces the buffered answers being flushed.
type SubmitService struct {
	rdb       *redis.Client
	records   submitRecordStore
	tokens    *TokenService
	sync      *SyncService
	answers   *AnswerService
	batchSize int
	queueTTL  time.Duration
	log       zerolog.Logger
}

// NewSubmitService creates a new SubmitService.
func NewSubmitService(rdb *redis.Client, records submitRecordStore, tokens *TokenService,
	sync *SyncService, answers *AnswerService, cfg *config.Config, log zerolog.Logger) *SubmitService {
	return &SubmitService{
		rdb:       rdb,
		records:   records,
		tokens:    tokens,
		sync:      sync,
		answers:   answers,
		batchSize: cfg.SubmitBatchSize,
		queueTTL:  cfg.QueueTTL,
		log:       log.With().Str("component", "submit_service").Logger(),
	}
}

// HandleExamTimeout registers a finished exam for mass submission and seeds
// its queue from the remaining in_progress participants.
func (s *SubmitService) HandleExamTimeout(ctx context.Context, examID int64) error {
	examKey := strconv.FormatInt(examID, 10)
	if err := s.rdb.SAdd(ctx, config.TimeoutExamSetKey, examKey).Err(); err != nil {
		return fmt.Errorf("register exam timeout: %w", err)
	}
	if err := s.rdb.Expire(ctx, config.TimeoutExamSetKey, s.queueTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Timeout set TTL refresh failed")
	}

	seeded, err := s.seedQueue(ctx, examID)
	if err != nil {
		return err
	}
	s.log.Info().Int64("exam_id", examID).Int("seeded", seeded).Msg("Exam registered for mass submission")
	return nil
}

// InitQueues reseeds empty queues of registered exams. A queue can sit empty
// while some participants remain in_progress: their submission failed, or a
// prior seed raced the status transition. Reseeding picks them back up.
func (s *SubmitService) InitQueues(ctx context.Context) error {
	examIDs, err := s.registeredExams(ctx)
	if err != nil {
		return err
	}

	for _, examID := range examIDs {
		n, err := s.rdb.LLen(ctx, config.CacheKey.SubmitQueueKey(examID)).Result()
		if err != nil || n > 0 {
			continue
		}
		if seeded, err := s.seedQueue(ctx, examID); err != nil {
			s.log.Error().Err(err).Int64("exam_id", examID).Msg("Queue reseed failed")
		} else if seeded > 0 {
			s.log.Info().Int64("exam_id", examID).Int("seeded", seeded).Msg("Submission queue reseeded")
		}
	}
	return nil
}

// DrainQueues pops and submits a bounded batch from every registered exam's
// queue. An exam whose queue is empty is finalized: its token is revoked and
// it leaves the registry.
func (s *SubmitService) DrainQueues(ctx context.Context) error {
	examIDs, err := s.registeredExams(ctx)
	if err != nil {
		return err
	}

	for _, examID := range examIDs {
		queueKey := config.CacheKey.SubmitQueueKey(examID)

		n, err := s.rdb.LLen(ctx, queueKey).Result()
		if err != nil {
			s.log.Error().Err(err).Int64("exam_id", examID).Msg("Queue length check failed")
			continue
		}
		if n == 0 {
			if err := s.finalizeExam(ctx, examID); err != nil {
				s.log.Error().Err(err).Int64("exam_id", examID).Msg("Exam finalize failed")
			}
			continue
		}

		for i := 0; i < s.batchSize; i++ {
			entry, err := s.rdb.LPop(ctx, queueKey).Result()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				s.log.Error().Err(err).Int64("exam_id", examID).Msg("Queue pop failed")
				break
			}

			examRecordID, token, ok := parseQueueEntry(entry)
			if !ok {
				s.log.Warn().Str("entry", entry).Msg("Malformed queue entry, dropping")
				continue
			}
			if err := s.SubmitStudentExam(ctx, token, examRecordID, model.RecordStatusSubmitted); err != nil {
				// Leave the record to the next reseed rather than requeueing
				// a possibly poisoned entry.
				s.log.Error().Err(err).Int64("exam_record_id", examRecordID).Msg("Forced submission failed")
			}
		}
	}
	return nil
}

// SubmitStudentExam flushes a participant's buffered answers, closes the
// record, and drops their tracking keys. Already-closed records are a no-op,
// so duplicate queue entries and early manual submits stay idempotent.
func (s *SubmitService) SubmitStudentExam(ctx context.Context, token string, examRecordID int64, status model.RecordStatus) error {
	if err := s.sync.ForceSyncAll(ctx, token, examRecordID); err != nil {
		return fmt.Errorf("flush answers: %w", err)
	}

	err := s.records.MarkSubmitted(ctx, examRecordID, status, time.Now())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("close record: %w", err)
	}

	if err := s.answers.CleanupParticipant(ctx, token, examRecordID); err != nil {
		s.log.Warn().Err(err).Int64("exam_record_id", examRecordID).Msg("Participant cleanup failed")
	}

	s.log.Info().Int64("exam_record_id", examRecordID).Str("status", string(status)).Msg("Exam submitted")
	return nil
}

// CleanupQueues removes submission queues that lost their TTL.
func (s *SubmitService) CleanupQueues(ctx context.Context) error {
	var removed int

	iter := s.rdb.Scan(ctx, 0, config.SubmitQueuePattern, 100).Iterator()
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
		return fmt.Errorf("scan submission queues: %w", err)
	}

	if removed > 0 {
		s.log.Warn().Int("removed", removed).Msg("Removed submission queues without TTL")
	}
	return nil
}

// seedQueue enqueues every remaining in_progress participant of an exam.
// Returns the number of entries pushed.
func (s *SubmitService) seedQueue(ctx context.Context, examID int64) (int, error) {
	token, err := s.tokens.Get(ctx, examID)
	if err != nil {
		return 0, err
	}
	if token == "" {
		// Token already gone; the drain tick will finalize the exam.
		return 0, nil
	}

	records, err := s.records.ListInProgressByExam(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("list in_progress records: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	queueKey := config.CacheKey.SubmitQueueKey(examID)
	entries := make([]interface{}, 0, len(records))
	for _, rec := range records {
		entries = append(entries, fmt.Sprintf("%d:%s", rec.ID, token))
	}

	if err := s.rdb.RPush(ctx, queueKey, entries...).Err(); err != nil {
		return 0, fmt.Errorf("seed submission queue: %w", err)
	}
	if err := s.rdb.Expire(ctx, queueKey, s.queueTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", queueKey).Msg("Queue TTL refresh failed")
	}
	return len(entries), nil
}

// finalizeExam revokes the exam token and removes the exam from the timeout
// registry once nothing is left to submit.
func (s *SubmitService) finalizeExam(ctx context.Context, examID int64) error {
	records, err := s.records.ListInProgressByExam(ctx, examID)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		// Queue drained but stragglers remain; the init tick will reseed.
		return nil
	}

	if err := s.tokens.Revoke(ctx, examID); err != nil {
		return err
	}
	if err := s.rdb.SRem(ctx, config.TimeoutExamSetKey, strconv.FormatInt(examID, 10)).Err(); err != nil {
		return fmt.Errorf("deregister exam: %w", err)
	}

	s.log.Info().Int64("exam_id", examID).Msg("Mass submission complete, token revoked")
	return nil
}

// registeredExams lists the exam IDs awaiting mass submission.
func (s *SubmitService) registeredExams(ctx context.Context) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, config.TimeoutExamSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read timeout registry: %w", err)
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

// parseQueueEntry splits a "recordID:token" queue entry.
func parseQueueEntry(entry string) (examRecordID int64, token string, ok bool) {
	parts := strings.SplitN(entry, ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, parts[1], true
}
