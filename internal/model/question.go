package model

import (
	"time"
)

// Question is a minimal view of the question bank entity. Authoring lives in
// the management surface; the execution engine only references IDs.
type Question struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Answer    string    `json:"answer"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Paper groups questions into an orderable exam paper.
type Paper struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Duration  int       `json:"duration"` // minutes
	Status    int       `json:"status"`   // 0 disabled, 1 enabled
	CreatedAt time.Time `json:"created_at"`
}

// PaperQuestion links a question into a paper at a position.
type PaperQuestion struct {
	ID         int64 `json:"id"`
	PaperID    int64 `json:"paper_id"`
	QuestionID int64 `json:"question_id"`
	Position   int   `json:"position"`
	Score      int   `json:"score"`
}
