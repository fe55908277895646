package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
)

// cheatRecordStore is the slice of the exam record repository the anti-cheat
// recorder needs.
type cheatRecordStore interface {
	IncrementSwitchCount(ctx context.Context, id int64) error
	MarkCheating(ctx context.Context, id int64, reason string) error
}

// AntiCheatService tracks per-participant behaviour signals: liveness
// heartbeats, window blur/focus, and tab switches. Crossing the switch
// threshold marks the record as cheating; the mark is never reversed.
type AntiCheatService struct {
	rdb     *redis.Client
	records cheatRecordStore
	cfg     *config.Config
	log     zerolog.Logger
}

// NewAntiCheatService creates a new AntiCheatService.
func NewAntiCheatService(rdb *redis.Client, records cheatRecordStore, cfg *config.Config, log zerolog.Logger) *AntiCheatService {
	return &AntiCheatService{
		rdb:     rdb,
		records: records,
		cfg:     cfg,
		log:     log.With().Str("component", "anticheat").Logger(),
	}
}

// RecordHeartbeat stamps the participant's liveness timestamp.
func (s *AntiCheatService) RecordHeartbeat(ctx context.Context, examRecordID, studentID int64) error {
	key := config.CacheKey.HeartbeatKey(examRecordID, studentID)
	now := time.Now().UnixMilli()
	if err := s.rdb.Set(ctx, key, now, s.cfg.HeartbeatTimeout).Err(); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// IsHeartbeatStale reports whether the participant has not pinged within the
// heartbeat timeout. An absent key counts as stale.
func (s *AntiCheatService) IsHeartbeatStale(ctx context.Context, examRecordID, studentID int64) (bool, error) {
	key := config.CacheKey.HeartbeatKey(examRecordID, studentID)
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check heartbeat: %w", err)
	}

	last, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return true, nil
	}
	return time.Since(time.UnixMilli(last)) > s.cfg.HeartbeatTimeout, nil
}

// RecordBlur stamps when the participant's window lost focus. The stamp
// must outlive the blur timeout so the matching focus event can measure the
// blur duration; it rides the participant cache TTL.
func (s *AntiCheatService) RecordBlur(ctx context.Context, examRecordID, studentID int64) error {
	key := config.CacheKey.BlurKey(examRecordID, studentID)
	now := time.Now().UnixMilli()
	if err := s.rdb.Set(ctx, key, now, s.cfg.AnswerTTL).Err(); err != nil {
		return fmt.Errorf("record blur: %w", err)
	}
	return nil
}

// RecordFocus clears the blur stamp. A blur that lasted longer than the blur
// timeout counts as a tab switch.
func (s *AntiCheatService) RecordFocus(ctx context.Context, examRecordID, studentID int64) error {
	key := config.CacheKey.BlurKey(examRecordID, studentID)
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check blur: %w", err)
	}

	blurredAt, parseErr := strconv.ParseInt(val, 10, 64)
	if parseErr == nil && time.Since(time.UnixMilli(blurredAt)) > s.cfg.BlurTimeout {
		if err := s.RecordSwitch(ctx, examRecordID, studentID); err != nil {
			return err
		}
	}
	return s.rdb.Del(ctx, key).Err()
}

// RecordSwitch increments the persisted switch counter and the cache-side
// counter used for realtime monitoring. Reaching the threshold flags the
// record as cheating.
func (s *AntiCheatService) RecordSwitch(ctx context.Context, examRecordID, studentID int64) error {
	if err := s.records.IncrementSwitchCount(ctx, examRecordID); err != nil {
		return fmt.Errorf("increment switch count: %w", err)
	}

	key := config.CacheKey.SwitchCountKey(examRecordID, studentID)
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment switch cache: %w", err)
	}
	if err := s.rdb.Expire(ctx, key, s.cfg.AnswerTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Switch counter TTL refresh failed")
	}

	if count >= int64(s.cfg.SwitchThreshold) {
		reason := fmt.Sprintf("switch count exceeded (%d)", count)
		if err := s.MarkCheating(ctx, examRecordID, reason); err != nil {
			return err
		}
	}
	return nil
}

// MarkCheating persists the cheating flag and reason.
func (s *AntiCheatService) MarkCheating(ctx context.Context, examRecordID int64, reason string) error {
	if err := s.records.MarkCheating(ctx, examRecordID, reason); err != nil {
		return fmt.Errorf("mark cheating: %w", err)
	}
	s.log.Warn().Int64("exam_record_id", examRecordID).Str("reason", reason).Msg("Record flagged as cheating")
	return nil
}

// DetectAbnormal flags participants whose heartbeat went stale.
func (s *AntiCheatService) DetectAbnormal(ctx context.Context, examRecordID, studentID int64) error {
	stale, err := s.IsHeartbeatStale(ctx, examRecordID, studentID)
	if err != nil {
		return err
	}
	if stale {
		return s.MarkCheating(ctx, examRecordID, "heartbeat lost, participant may have left the exam page")
	}
	return nil
}
