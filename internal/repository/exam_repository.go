package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edukit/examgate-backend/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, name, paper_id, start_time, end_time, duration, status, created_at, updated_at`

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Name, &e.PaperID, &e.StartTime, &e.EndTime,
		&e.Duration, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its ID.
func (r *ExamRepository) GetByID(ctx context.Context, id int64) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exam WHERE id = $1`, id))
}

// ListNonTerminal retrieves exams whose status can still change with time.
func (r *ExamRepository) ListNonTerminal(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exam
		 WHERE status IN ($1, $2)
		 ORDER BY start_time`,
		model.ExamStatusNotStarted, model.ExamStatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Name, &e.PaperID, &e.StartTime, &e.EndTime,
			&e.Duration, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// UpdateStatus sets an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id int64, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}
