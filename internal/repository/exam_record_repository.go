package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edukit/examgate-backend/internal/model"
)

// ExamRecordRepository handles exam participation records.
type ExamRecordRepository struct {
	pool *pgxpool.Pool
}

// NewExamRecordRepository creates a new ExamRecordRepository.
func NewExamRecordRepository(pool *pgxpool.Pool) *ExamRecordRepository {
	return &ExamRecordRepository{pool: pool}
}

const recordColumns = `id, exam_id, student_id, paper_id, start_time, submit_time,
	total_score, score, status, switch_count, is_cheating, cheating_reason,
	created_at, updated_at`

func scanRecord(row pgx.Row) (*model.ExamRecord, error) {
	rec := &model.ExamRecord{}
	err := row.Scan(&rec.ID, &rec.ExamID, &rec.StudentID, &rec.PaperID,
		&rec.StartTime, &rec.SubmitTime, &rec.TotalScore, &rec.Score,
		&rec.Status, &rec.SwitchCount, &rec.IsCheating, &rec.CheatingReason,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Create inserts a new in_progress record and fills the generated fields.
func (r *ExamRecordRepository) Create(ctx context.Context, rec *model.ExamRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_record (exam_id, student_id, paper_id, start_time, status, switch_count, is_cheating)
		 VALUES ($1, $2, $3, NOW(), $4, 0, 0)
		 RETURNING id, start_time`,
		rec.ExamID, rec.StudentID, rec.PaperID, model.RecordStatusInProgress,
	).Scan(&rec.ID, &rec.StartTime)
}

// GetByID retrieves a record by its ID.
func (r *ExamRecordRepository) GetByID(ctx context.Context, id int64) (*model.ExamRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM exam_record WHERE id = $1`, id))
}

// GetByExamAndStudent retrieves the student's non-cancelled record for an exam.
func (r *ExamRecordRepository) GetByExamAndStudent(ctx context.Context, examID, studentID int64) (*model.ExamRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM exam_record
		 WHERE exam_id = $1 AND student_id = $2 AND status <> $3`,
		examID, studentID, model.RecordStatusCancelled))
}

// ListInProgressByExam retrieves every in_progress record for an exam.
func (r *ExamRecordRepository) ListInProgressByExam(ctx context.Context, examID int64) ([]model.ExamRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM exam_record
		 WHERE exam_id = $1 AND status = $2
		 ORDER BY id`,
		examID, model.RecordStatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ExamRecord
	for rows.Next() {
		var rec model.ExamRecord
		if err := rows.Scan(&rec.ID, &rec.ExamID, &rec.StudentID, &rec.PaperID,
			&rec.StartTime, &rec.SubmitTime, &rec.TotalScore, &rec.Score,
			&rec.Status, &rec.SwitchCount, &rec.IsCheating, &rec.CheatingReason,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkSubmitted transitions the record out of in_progress and stamps the
// submit time. Returns ErrNotFound if the record was not in_progress, which
// makes re-submission attempts idempotent.
func (r *ExamRecordRepository) MarkSubmitted(ctx context.Context, id int64, status model.RecordStatus, submitTime time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_record SET status = $1, submit_time = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		status, submitTime, id, model.RecordStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementSwitchCount bumps the persisted tab-switch counter.
func (r *ExamRecordRepository) IncrementSwitchCount(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_record SET switch_count = switch_count + 1, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// MarkCheating flags the record as cheating with a reason. The flag is
// additive; it is never cleared within a record.
func (r *ExamRecordRepository) MarkCheating(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_record SET is_cheating = 1, cheating_reason = $1, updated_at = NOW() WHERE id = $2`,
		reason, id)
	return err
}
