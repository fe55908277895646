package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edukit/examgate-backend/internal/model"
)

// AnswerRecordRepository handles persisted answers.
type AnswerRecordRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRecordRepository creates a new AnswerRecordRepository.
func NewAnswerRecordRepository(pool *pgxpool.Pool) *AnswerRecordRepository {
	return &AnswerRecordRepository{pool: pool}
}

// GetByRecordAndQuestion retrieves the answer row for one question of one
// participation record.
func (r *AnswerRecordRepository) GetByRecordAndQuestion(ctx context.Context, examRecordID, questionID int64) (*model.AnswerRecord, error) {
	a := &model.AnswerRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_record_id, question_id, student_answer, is_correct, score, answer_time, created_at, updated_at
		 FROM answer_record
		 WHERE exam_record_id = $1 AND question_id = $2`,
		examRecordID, questionID,
	).Scan(&a.ID, &a.ExamRecordID, &a.QuestionID, &a.StudentAnswer,
		&a.IsCorrect, &a.Score, &a.AnswerTime, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// SyncBatch applies one sync tick's diff in a single transaction: inserts go
// out as one multi-row statement, updates are iterated.
func (r *AnswerRecordRepository) SyncBatch(ctx context.Context, inserts, updates []model.AnswerRecord) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin sync tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(inserts) > 0 {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO answer_record (exam_record_id, question_id, student_answer, is_correct, score, answer_time) VALUES `)
		args := make([]interface{}, 0, len(inserts)*6)
		for i, a := range inserts {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 6
			sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6))
			args = append(args, a.ExamRecordID, a.QuestionID, a.StudentAnswer,
				a.IsCorrect, a.Score, a.AnswerTime)
		}
		// A concurrent force-sync may have inserted the same row already.
		sb.WriteString(` ON CONFLICT (exam_record_id, question_id) DO UPDATE
			SET student_answer = EXCLUDED.student_answer,
			    answer_time = EXCLUDED.answer_time,
			    updated_at = NOW()`)

		if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("batch insert answers: %w", err)
		}
	}

	for _, a := range updates {
		if _, err := tx.Exec(ctx,
			`UPDATE answer_record SET student_answer = $1, answer_time = $2, updated_at = NOW()
			 WHERE exam_record_id = $3 AND question_id = $4`,
			a.StudentAnswer, a.AnswerTime, a.ExamRecordID, a.QuestionID); err != nil {
			return fmt.Errorf("update answer q=%d: %w", a.QuestionID, err)
		}
	}

	return tx.Commit(ctx)
}
