package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/repository"
)

type stubSubmitStore struct {
	inProgress map[int64][]model.ExamRecord // examID -> records
	closed     map[int64]model.RecordStatus // recordID -> final status
}

func newStubSubmitStore() *stubSubmitStore {
	return &stubSubmitStore{
		inProgress: make(map[int64][]model.ExamRecord),
		closed:     make(map[int64]model.RecordStatus),
	}
}

func (s *stubSubmitStore) addRecord(examID, recordID int64) {
	s.inProgress[examID] = append(s.inProgress[examID], model.ExamRecord{
		ID: recordID, ExamID: examID, Status: model.RecordStatusInProgress,
	})
}

func (s *stubSubmitStore) ListInProgressByExam(_ context.Context, examID int64) ([]model.ExamRecord, error) {
	return s.inProgress[examID], nil
}

func (s *stubSubmitStore) MarkSubmitted(_ context.Context, id int64, status model.RecordStatus, _ time.Time) error {
	for examID, records := range s.inProgress {
		for i, rec := range records {
			if rec.ID == id {
				s.inProgress[examID] = append(records[:i], records[i+1:]...)
				s.closed[id] = status
				return nil
			}
		}
	}
	return repository.ErrNotFound
}

func newSubmitFixture(t *testing.T) (*SubmitService, *stubSubmitStore, *TokenService, *AnswerService, *SyncService) {
	t.Helper()
	_, rdb := newTestRedis(t)
	cfg := testConfig()

	store := newStubSubmitStore()
	tokens := NewTokenService(rdb, cfg, testLog)
	answers := NewAnswerService(rdb, cfg, NewPusher(rdb, testLog), testLog)
	sync := NewSyncService(rdb, newStubAnswerStore(), testLog)
	svc := NewSubmitService(rdb, store, tokens, sync, answers, cfg, testLog)
	return svc, store, tokens, answers, sync
}

func TestHandleExamTimeoutSeedsQueue(t *testing.T) {
	svc, store, tokens, _, _ := newSubmitFixture(t)
	ctx := context.Background()

	token, err := tokens.Issue(ctx, 50, time.Now().Add(time.Hour))
	require.NoError(t, err)
	store.addRecord(50, 501)
	store.addRecord(50, 502)

	require.NoError(t, svc.HandleExamTimeout(ctx, 50))

	entries, err := svc.rdb.LRange(ctx, config.CacheKey.SubmitQueueKey(50), 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{
		fmt.Sprintf("501:%s", token),
		fmt.Sprintf("502:%s", token),
	}, entries)

	registered, err := svc.rdb.SIsMember(ctx, config.TimeoutExamSetKey, "50").Result()
	require.NoError(t, err)
	require.True(t, registered)
}

func TestDrainQueuesSubmitsParticipants(t *testing.T) {
	svc, store, tokens, answers, _ := newSubmitFixture(t)
	ctx := context.Background()

	token, err := tokens.Issue(ctx, 51, time.Now().Add(time.Hour))
	require.NoError(t, err)
	store.addRecord(51, 511)

	_, err = answers.SaveAnswer(ctx, token, 511, 1, "A")
	require.NoError(t, err)

	require.NoError(t, svc.HandleExamTimeout(ctx, 51))
	require.NoError(t, svc.DrainQueues(ctx))

	// Forced submission still closes the record as submitted.
	require.Equal(t, model.RecordStatusSubmitted, store.closed[511])
	require.Empty(t, store.inProgress[51])

	// Tracking keys dropped.
	ids, err := answers.AnsweredQuestionIDs(ctx, token, 511)
	require.NoError(t, err)
	require.Empty(t, ids)

	// Token stays until a later tick sees the empty queue.
	require.True(t, tokens.Validate(ctx, 51, token))

	require.NoError(t, svc.DrainQueues(ctx))
	require.False(t, tokens.Validate(ctx, 51, token))

	registered, err := svc.rdb.SIsMember(ctx, config.TimeoutExamSetKey, "51").Result()
	require.NoError(t, err)
	require.False(t, registered)
}

func TestDrainQueuesRespectsBatchSize(t *testing.T) {
	svc, store, tokens, _, _ := newSubmitFixture(t)
	ctx := context.Background()

	_, err := tokens.Issue(ctx, 52, time.Now().Add(time.Hour))
	require.NoError(t, err)
	for i := int64(1); i <= 15; i++ {
		store.addRecord(52, 5200+i)
	}

	require.NoError(t, svc.HandleExamTimeout(ctx, 52))
	require.NoError(t, svc.DrainQueues(ctx))

	// One tick closes at most a batch.
	require.Len(t, store.closed, 10)

	remaining, err := svc.rdb.LLen(ctx, config.CacheKey.SubmitQueueKey(52)).Result()
	require.NoError(t, err)
	require.EqualValues(t, 5, remaining)

	require.NoError(t, svc.DrainQueues(ctx))
	require.Len(t, store.closed, 15)
}

func TestSubmitStudentExamIdempotent(t *testing.T) {
	svc, store, _, _, _ := newSubmitFixture(t)
	ctx := context.Background()

	store.addRecord(53, 531)
	require.NoError(t, svc.SubmitStudentExam(ctx, testToken, 531, model.RecordStatusSubmitted))
	require.Equal(t, model.RecordStatusSubmitted, store.closed[531])

	// Second attempt hits a record no longer in_progress; still no error.
	require.NoError(t, svc.SubmitStudentExam(ctx, testToken, 531, model.RecordStatusTimeout))
	require.Equal(t, model.RecordStatusSubmitted, store.closed[531])
}

func TestInitQueuesReseedsEmptyQueue(t *testing.T) {
	svc, store, tokens, _, _ := newSubmitFixture(t)
	ctx := context.Background()

	token, err := tokens.Issue(ctx, 54, time.Now().Add(time.Hour))
	require.NoError(t, err)

	// Registered with nobody in the queue, but one straggler in the store.
	require.NoError(t, svc.rdb.SAdd(ctx, config.TimeoutExamSetKey, "54").Err())
	store.addRecord(54, 541)

	require.NoError(t, svc.InitQueues(ctx))

	entries, err := svc.rdb.LRange(ctx, config.CacheKey.SubmitQueueKey(54), 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{fmt.Sprintf("541:%s", token)}, entries)
}

func TestDrainQueuesDropsMalformedEntries(t *testing.T) {
	svc, store, tokens, _, _ := newSubmitFixture(t)
	ctx := context.Background()

	_, err := tokens.Issue(ctx, 55, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, svc.rdb.SAdd(ctx, config.TimeoutExamSetKey, "55").Err())
	require.NoError(t, svc.rdb.RPush(ctx, config.CacheKey.SubmitQueueKey(55), "not-a-valid-entry").Err())

	require.NoError(t, svc.DrainQueues(ctx))

	remaining, err := svc.rdb.LLen(ctx, config.CacheKey.SubmitQueueKey(55)).Result()
	require.NoError(t, err)
	require.Zero(t, remaining)
	require.Empty(t, store.closed)
}

func TestCleanupQueuesRemovesTTLLessQueues(t *testing.T) {
	svc, _, _, _, _ := newSubmitFixture(t)
	ctx := context.Background()

	withTTL := config.CacheKey.SubmitQueueKey(60)
	require.NoError(t, svc.rdb.RPush(ctx, withTTL, "601:tok").Err())
	require.NoError(t, svc.rdb.Expire(ctx, withTTL, time.Hour).Err())

	noTTL := config.CacheKey.SubmitQueueKey(61)
	require.NoError(t, svc.rdb.RPush(ctx, noTTL, "611:tok").Err())

	require.NoError(t, svc.CleanupQueues(ctx))

	n, err := svc.rdb.Exists(ctx, withTTL).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = svc.rdb.Exists(ctx, noTTL).Result()
	require.NoError(t, err)
	require.Zero(t, n)
}
