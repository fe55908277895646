package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/response"
)

// examStore is the slice of the exam repository the lifecycle driver needs.
type examStore interface {
	GetByID(ctx context.Context, id int64) (*model.Exam, error)
	ListNonTerminal(ctx context.Context) ([]model.Exam, error)
	UpdateStatus(ctx context.Context, id int64, status model.ExamStatus) error
}

// StatusService drives the exam lifecycle. Status moves forward only:
// not_started to in_progress to finished, with cancellation allowed before
// the start. Entering in_progress mints the entry token; entering finished
// kicks off mass submission.
type StatusService struct {
	exams  examStore
	tokens *TokenService
	pusher *Pusher
	submit *SubmitService
	log    zerolog.Logger
}

// NewStatusService creates a new StatusService.
func NewStatusService(exams examStore, tokens *TokenService, pusher *Pusher,
	submit *SubmitService, log zerolog.Logger) *StatusService {
	return &StatusService{
		exams:  exams,
		tokens: tokens,
		pusher: pusher,
		submit: submit,
		log:    log.With().Str("component", "status_service").Logger(),
	}
}

// ApplyTimeTransitions scans non-terminal exams and applies the status their
// time window implies. One exam failing does not stop the scan.
func (s *StatusService) ApplyTimeTransitions(ctx context.Context) error {
	exams, err := s.exams.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("list non-terminal exams: %w", err)
	}

	now := time.Now()
	for i := range exams {
		exam := &exams[i]
		derived := exam.StatusForTime(now)
		if derived == exam.Status {
			continue
		}
		if err := s.transitionTo(ctx, exam, derived); err != nil {
			s.log.Error().Err(err).Int64("exam_id", exam.ID).
				Str("target", string(derived)).Msg("Time-based transition failed")
		}
	}
	return nil
}

// Transition applies a manual status change requested by staff. Allowed
// moves: not_started to in_progress (early start), in_progress to finished
// (early finish), not_started to cancelled. Anything else conflicts.
func (s *StatusService) Transition(ctx context.Context, examID int64, target model.ExamStatus) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}

	if exam.Status == target {
		return exam, nil
	}
	if !manualTransitionAllowed(exam.Status, target) {
		return nil, response.ErrStateConflict.WithMessagef(
			"cannot transition exam from %s to %s", exam.Status, target)
	}

	if err := s.transitionTo(ctx, exam, target); err != nil {
		return nil, err
	}
	return exam, nil
}

// transitionTo persists the new status and runs its entry side effects.
func (s *StatusService) transitionTo(ctx context.Context, exam *model.Exam, target model.ExamStatus) error {
	if err := s.exams.UpdateStatus(ctx, exam.ID, target); err != nil {
		return fmt.Errorf("update exam status: %w", err)
	}
	from := exam.Status
	exam.Status = target

	switch target {
	case model.ExamStatusInProgress:
		has, err := s.tokens.Has(ctx, exam.ID)
		if err != nil {
			return err
		}
		if !has {
			if _, err := s.tokens.Issue(ctx, exam.ID, exam.EndTime); err != nil {
				return err
			}
		}
	case model.ExamStatusFinished:
		if err := s.submit.HandleExamTimeout(ctx, exam.ID); err != nil {
			s.log.Error().Err(err).Int64("exam_id", exam.ID).Msg("Mass submission kickoff failed")
		}
	}

	s.pusher.PushExamStatus(ctx, exam.ID, target)
	s.log.Info().Int64("exam_id", exam.ID).
		Str("from", string(from)).Str("to", string(target)).Msg("Exam status changed")
	return nil
}

func manualTransitionAllowed(from, to model.ExamStatus) bool {
	switch from {
	case model.ExamStatusNotStarted:
		return to == model.ExamStatusInProgress || to == model.ExamStatusCancelled
	case model.ExamStatusInProgress:
		return to == model.ExamStatusFinished
	default:
		return false
	}
}
