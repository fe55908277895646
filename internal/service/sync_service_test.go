package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/repository"
)

type answerRowKey struct {
	recordID   int64
	questionID int64
}

type stubAnswerStore struct {
	rows     map[answerRowKey]model.AnswerRecord
	inserted int
	updated  int
	failSync bool
}

func newStubAnswerStore() *stubAnswerStore {
	return &stubAnswerStore{rows: make(map[answerRowKey]model.AnswerRecord)}
}

func (s *stubAnswerStore) GetByRecordAndQuestion(_ context.Context, recordID, questionID int64) (*model.AnswerRecord, error) {
	row, ok := s.rows[answerRowKey{recordID, questionID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (s *stubAnswerStore) SyncBatch(_ context.Context, inserts, updates []model.AnswerRecord) error {
	if s.failSync {
		return errors.New("store down")
	}
	for _, a := range inserts {
		s.rows[answerRowKey{a.ExamRecordID, a.QuestionID}] = a
		s.inserted++
	}
	for _, a := range updates {
		s.rows[answerRowKey{a.ExamRecordID, a.QuestionID}] = a
		s.updated++
	}
	return nil
}

func bufferAnswer(t *testing.T, svc *AnswerService, token string, recordID, questionID int64, answer string) {
	t.Helper()
	_, err := svc.SaveAnswer(context.Background(), token, recordID, questionID, answer)
	require.NoError(t, err)
}

func TestSyncDirtySetsInsertsNewAnswers(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newStubAnswerStore()
	answers := NewAnswerService(rdb, testConfig(), NewPusher(rdb, testLog), testLog)
	svc := NewSyncService(rdb, store, testLog)
	ctx := context.Background()

	bufferAnswer(t, answers, testToken, 20, 1, "A")
	bufferAnswer(t, answers, testToken, 20, 2, "B")

	require.NoError(t, svc.SyncDirtySets(ctx))

	require.Equal(t, 2, store.inserted)
	require.Equal(t, "A", store.rows[answerRowKey{20, 1}].StudentAnswer)
	require.Equal(t, "B", store.rows[answerRowKey{20, 2}].StudentAnswer)

	// Dirty set consumed.
	n, err := rdb.Exists(ctx, config.CacheKey.DirtySetKey(testToken, 20)).Result()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSyncDirtySetsUpdatesChangedAnswersOnly(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newStubAnswerStore()
	answers := NewAnswerService(rdb, testConfig(), NewPusher(rdb, testLog), testLog)
	svc := NewSyncService(rdb, store, testLog)
	ctx := context.Background()

	store.rows[answerRowKey{21, 1}] = model.AnswerRecord{ExamRecordID: 21, QuestionID: 1, StudentAnswer: "A"}
	store.rows[answerRowKey{21, 2}] = model.AnswerRecord{ExamRecordID: 21, QuestionID: 2, StudentAnswer: "B"}

	bufferAnswer(t, answers, testToken, 21, 1, "A") // unchanged
	bufferAnswer(t, answers, testToken, 21, 2, "C") // changed

	require.NoError(t, svc.SyncDirtySets(ctx))

	require.Zero(t, store.inserted)
	require.Equal(t, 1, store.updated)
	require.Equal(t, "C", store.rows[answerRowKey{21, 2}].StudentAnswer)
}

func TestSyncDirtySetsRetainsSetOnStoreFailure(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newStubAnswerStore()
	store.failSync = true
	answers := NewAnswerService(rdb, testConfig(), NewPusher(rdb, testLog), testLog)
	svc := NewSyncService(rdb, store, testLog)
	ctx := context.Background()

	bufferAnswer(t, answers, testToken, 22, 1, "A")

	require.NoError(t, svc.SyncDirtySets(ctx))

	// Dirty set survives for the next tick.
	n, err := rdb.Exists(ctx, config.CacheKey.DirtySetKey(testToken, 22)).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	store.failSync = false
	require.NoError(t, svc.SyncDirtySets(ctx))
	require.Equal(t, 1, store.inserted)
}

func TestSyncDirtySetsDropsMalformedKeys(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newStubAnswerStore()
	svc := NewSyncService(rdb, store, testLog)
	ctx := context.Background()

	require.NoError(t, rdb.SAdd(ctx, "exam:sync:queue:garbage", "1").Err())

	require.NoError(t, svc.SyncDirtySets(ctx))

	n, err := rdb.Exists(ctx, "exam:sync:queue:garbage").Result()
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, store.inserted)
}

func TestForceSyncAllRewritesEverything(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := newStubAnswerStore()
	answers := NewAnswerService(rdb, testConfig(), NewPusher(rdb, testLog), testLog)
	svc := NewSyncService(rdb, store, testLog)
	ctx := context.Background()

	store.rows[answerRowKey{23, 1}] = model.AnswerRecord{ExamRecordID: 23, QuestionID: 1, StudentAnswer: "A"}

	bufferAnswer(t, answers, testToken, 23, 1, "A") // unchanged, still rewritten
	bufferAnswer(t, answers, testToken, 23, 2, "B")

	// Regular sync already consumed the dirty set.
	require.NoError(t, svc.SyncDirtySets(ctx))
	insertedBefore, updatedBefore := store.inserted, store.updated

	require.NoError(t, svc.ForceSyncAll(ctx, testToken, 23))

	require.Equal(t, insertedBefore, store.inserted)
	require.Equal(t, updatedBefore+2, store.updated)
}

func TestCleanupStaleDirtyKeys(t *testing.T) {
	_, rdb := newTestRedis(t)
	svc := NewSyncService(rdb, newStubAnswerStore(), testLog)
	ctx := context.Background()

	withTTL := config.CacheKey.DirtySetKey(testToken, 30)
	require.NoError(t, rdb.SAdd(ctx, withTTL, "1").Err())
	require.NoError(t, rdb.Expire(ctx, withTTL, time.Hour).Err())

	noTTL := config.CacheKey.DirtySetKey(testToken, 31)
	require.NoError(t, rdb.SAdd(ctx, noTTL, "1").Err())

	require.NoError(t, svc.CleanupStaleDirtyKeys(ctx))

	n, err := rdb.Exists(ctx, withTTL).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = rdb.Exists(ctx, noTTL).Result()
	require.NoError(t, err)
	require.Zero(t, n)
}
