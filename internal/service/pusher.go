package service

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/model"
)

// Pusher fans realtime events out over Redis Pub/Sub. WebSocket handlers on
// any instance subscribe to the per-record and per-exam channels and forward
// payloads to connected clients, so pushes survive horizontal scaling.
type Pusher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewPusher creates a new Pusher.
func NewPusher(rdb *redis.Client, log zerolog.Logger) *Pusher {
	return &Pusher{
		rdb: rdb,
		log: log.With().Str("component", "pusher").Logger(),
	}
}

// PushProgress publishes a participant's answered-question count.
func (p *Pusher) PushProgress(ctx context.Context, examRecordID, progress int64) {
	channel := config.CacheKey.ProgressTopic(examRecordID)
	if err := p.rdb.Publish(ctx, channel, strconv.FormatInt(progress, 10)).Err(); err != nil {
		p.log.Error().Err(err).Int64("exam_record_id", examRecordID).Msg("Progress push failed")
	}
}

// PushWarning publishes a warning message to one participant.
func (p *Pusher) PushWarning(ctx context.Context, examRecordID int64, message string) {
	channel := config.CacheKey.WarningQueue(examRecordID)
	if err := p.rdb.Publish(ctx, channel, message).Err(); err != nil {
		p.log.Error().Err(err).Int64("exam_record_id", examRecordID).Msg("Warning push failed")
	}
}

// PushExamStatus broadcasts an exam status change to every participant.
func (p *Pusher) PushExamStatus(ctx context.Context, examID int64, status model.ExamStatus) {
	channel := config.CacheKey.StatusTopic(examID)
	if err := p.rdb.Publish(ctx, channel, string(status)).Err(); err != nil {
		p.log.Error().Err(err).Int64("exam_id", examID).Msg("Status push failed")
	}
}
