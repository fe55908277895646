package handler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/service"
)

type stubCheatStore struct {
	reasons map[int64]string
}

func (s *stubCheatStore) IncrementSwitchCount(context.Context, int64) error { return nil }

func (s *stubCheatStore) MarkCheating(_ context.Context, id int64, reason string) error {
	s.reasons[id] = reason
	return nil
}

func newAbandonFixture(t *testing.T) (*WSHandler, *stubCheatStore, *service.AntiCheatService) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := &stubCheatStore{reasons: make(map[int64]string)}
	anticheat := service.NewAntiCheatService(rdb, store, config.Load(), zerolog.Nop())
	h := NewWSHandler(rdb, nil, nil, nil, nil, anticheat, nil, zerolog.Nop(), nil)
	return h, store, anticheat
}

func TestCheckAbandonedFlagsStaleHeartbeat(t *testing.T) {
	h, store, _ := newAbandonFixture(t)

	// No heartbeat was ever recorded; the disconnect check flags the record.
	h.checkAbandoned(&model.ExamRecord{ID: 901, ExamID: 9}, 77)

	require.Contains(t, store.reasons[901], "heartbeat lost")
}

func TestCheckAbandonedSparesLiveParticipant(t *testing.T) {
	h, store, anticheat := newAbandonFixture(t)

	require.NoError(t, anticheat.RecordHeartbeat(context.Background(), 902, 78))
	h.checkAbandoned(&model.ExamRecord{ID: 902, ExamID: 9}, 78)

	require.Empty(t, store.reasons)
}
