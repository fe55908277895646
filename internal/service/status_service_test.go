package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/response"
)

type stubExamStore struct {
	exams map[int64]*model.Exam
}

func newStubExamStore(exams ...*model.Exam) *stubExamStore {
	s := &stubExamStore{exams: make(map[int64]*model.Exam)}
	for _, e := range exams {
		s.exams[e.ID] = e
	}
	return s
}

func (s *stubExamStore) GetByID(_ context.Context, id int64) (*model.Exam, error) {
	e, ok := s.exams[id]
	if !ok {
		return nil, errors.New("exam not found")
	}
	copied := *e
	return &copied, nil
}

func (s *stubExamStore) ListNonTerminal(_ context.Context) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range s.exams {
		if !e.Status.Terminal() {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *stubExamStore) UpdateStatus(_ context.Context, id int64, status model.ExamStatus) error {
	e, ok := s.exams[id]
	if !ok {
		return errors.New("exam not found")
	}
	e.Status = status
	return nil
}

func newStatusFixture(t *testing.T, exams ...*model.Exam) (*StatusService, *stubExamStore, *TokenService, *redis.Client) {
	t.Helper()
	_, rdb := newTestRedis(t)
	cfg := testConfig()

	examStore := newStubExamStore(exams...)
	tokens := NewTokenService(rdb, cfg, testLog)
	pusher := NewPusher(rdb, testLog)
	answers := NewAnswerService(rdb, cfg, pusher, testLog)
	syncSvc := NewSyncService(rdb, newStubAnswerStore(), testLog)
	submit := NewSubmitService(rdb, newStubSubmitStore(), tokens, syncSvc, answers, cfg, testLog)
	svc := NewStatusService(examStore, tokens, pusher, submit, testLog)
	return svc, examStore, tokens, rdb
}

func TestApplyTimeTransitionsStartsExam(t *testing.T) {
	now := time.Now()
	exam := &model.Exam{
		ID: 70, Status: model.ExamStatusNotStarted,
		StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour),
	}
	svc, store, tokens, _ := newStatusFixture(t, exam)
	ctx := context.Background()

	require.NoError(t, svc.ApplyTimeTransitions(ctx))

	require.Equal(t, model.ExamStatusInProgress, store.exams[70].Status)
	has, err := tokens.Has(ctx, 70)
	require.NoError(t, err)
	require.True(t, has, "entry token issued on start")
}

func TestApplyTimeTransitionsFinishesExam(t *testing.T) {
	now := time.Now()
	exam := &model.Exam{
		ID: 71, Status: model.ExamStatusInProgress,
		StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Minute),
	}
	svc, store, tokens, rdb := newStatusFixture(t, exam)
	ctx := context.Background()

	_, err := tokens.Issue(ctx, 71, exam.EndTime)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyTimeTransitions(ctx))

	require.Equal(t, model.ExamStatusFinished, store.exams[71].Status)
	registered, err := rdb.SIsMember(ctx, config.TimeoutExamSetKey, "71").Result()
	require.NoError(t, err)
	require.True(t, registered, "finished exam queued for mass submission")
}

func TestApplyTimeTransitionsLeavesCurrentStatus(t *testing.T) {
	now := time.Now()
	exam := &model.Exam{
		ID: 72, Status: model.ExamStatusInProgress,
		StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Hour),
	}
	svc, store, tokens, _ := newStatusFixture(t, exam)
	ctx := context.Background()

	require.NoError(t, svc.ApplyTimeTransitions(ctx))

	require.Equal(t, model.ExamStatusInProgress, store.exams[72].Status)
	has, err := tokens.Has(ctx, 72)
	require.NoError(t, err)
	require.False(t, has, "no side effects without a transition")
}

func TestManualTransitionEarlyStart(t *testing.T) {
	now := time.Now()
	exam := &model.Exam{
		ID: 73, Status: model.ExamStatusNotStarted,
		StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour),
	}
	svc, store, tokens, _ := newStatusFixture(t, exam)
	ctx := context.Background()

	got, err := svc.Transition(ctx, 73, model.ExamStatusInProgress)
	require.NoError(t, err)
	require.Equal(t, model.ExamStatusInProgress, got.Status)
	require.Equal(t, model.ExamStatusInProgress, store.exams[73].Status)

	has, err := tokens.Has(ctx, 73)
	require.NoError(t, err)
	require.True(t, has)
}

func TestManualTransitionEarlyFinish(t *testing.T) {
	now := time.Now()
	exam := &model.Exam{
		ID: 74, Status: model.ExamStatusInProgress,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	}
	svc, store, _, rdb := newStatusFixture(t, exam)
	ctx := context.Background()

	_, err := svc.Transition(ctx, 74, model.ExamStatusFinished)
	require.NoError(t, err)
	require.Equal(t, model.ExamStatusFinished, store.exams[74].Status)

	registered, err := rdb.SIsMember(ctx, config.TimeoutExamSetKey, "74").Result()
	require.NoError(t, err)
	require.True(t, registered)
}

func TestManualTransitionCancelBeforeStart(t *testing.T) {
	now := time.Now()
	exam := &model.Exam{
		ID: 75, Status: model.ExamStatusNotStarted,
		StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour),
	}
	svc, store, _, _ := newStatusFixture(t, exam)

	_, err := svc.Transition(context.Background(), 75, model.ExamStatusCancelled)
	require.NoError(t, err)
	require.Equal(t, model.ExamStatusCancelled, store.exams[75].Status)
}

func TestManualTransitionRejectsBackwardMoves(t *testing.T) {
	now := time.Now()
	svc, _, _, _ := newStatusFixture(t,
		&model.Exam{ID: 76, Status: model.ExamStatusInProgress,
			StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
		&model.Exam{ID: 77, Status: model.ExamStatusFinished,
			StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-time.Hour)},
	)
	ctx := context.Background()

	// Cancelling a running exam is not allowed.
	_, err := svc.Transition(ctx, 76, model.ExamStatusCancelled)
	var appErr *response.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, response.ErrStateConflict.Status, appErr.Status)

	// Finished is terminal.
	_, err = svc.Transition(ctx, 77, model.ExamStatusInProgress)
	require.ErrorAs(t, err, &appErr)
}

func TestManualTransitionSameStatusIsNoop(t *testing.T) {
	now := time.Now()
	exam := &model.Exam{
		ID: 78, Status: model.ExamStatusInProgress,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	}
	svc, _, tokens, _ := newStatusFixture(t, exam)
	ctx := context.Background()

	got, err := svc.Transition(ctx, 78, model.ExamStatusInProgress)
	require.NoError(t, err)
	require.Equal(t, model.ExamStatusInProgress, got.Status)

	has, err := tokens.Has(ctx, 78)
	require.NoError(t, err)
	require.False(t, has, "no token re-issue on no-op")
}
