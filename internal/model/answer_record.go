package model

import (
	"time"
)

// AnswerRecord is the persisted answer for one (exam record, question) pair.
// Only the most recent student answer is kept; correctness and score are
// placeholders filled by the grading surface.
type AnswerRecord struct {
	ID            int64     `json:"id"`
	ExamRecordID  int64     `json:"exam_record_id"`
	QuestionID    int64     `json:"question_id"`
	StudentAnswer string    `json:"student_answer"`
	IsCorrect     int       `json:"is_correct"` // 0 wrong, 1 correct, 2 partial
	Score         int       `json:"score"`
	AnswerTime    int64     `json:"answer_time"` // unix millis of last save
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
