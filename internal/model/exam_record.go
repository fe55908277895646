package model

import (
	"time"
)

// RecordStatus enumerates the states of a student's participation in an exam.
type RecordStatus string

const (
	RecordStatusInProgress RecordStatus = "in_progress"
	RecordStatusSubmitted  RecordStatus = "submitted"
	RecordStatusTimeout    RecordStatus = "timeout"
	RecordStatusCancelled  RecordStatus = "cancelled"
)

// ExamRecord represents one student's participation in one exam.
// (exam_id, student_id) is unique across non-cancelled rows.
type ExamRecord struct {
	ID             int64        `json:"id"`
	ExamID         int64        `json:"exam_id"`
	StudentID      int64        `json:"student_id"`
	PaperID        int64        `json:"paper_id"`
	StartTime      time.Time    `json:"start_time"`
	SubmitTime     *time.Time   `json:"submit_time,omitempty"`
	TotalScore     int          `json:"total_score"`
	Score          int          `json:"score"`
	Status         RecordStatus `json:"status"`
	SwitchCount    int          `json:"switch_count"`
	IsCheating     int          `json:"is_cheating"` // 0 or 1
	CheatingReason *string      `json:"cheating_reason,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ExamRecordInfo is the read model returned to the owning student.
type ExamRecordInfo struct {
	ExamRecordID int64 `json:"examRecordId"`
	ExamID       int64 `json:"examId"`
	PaperID      int64 `json:"paperId"`
}

// SaveAnswerRequest is the payload for the REST answer save.
type SaveAnswerRequest struct {
	ExamRecordID  int64  `json:"examRecordId" binding:"required,min=1"`
	QuestionID    int64  `json:"questionId" binding:"required,min=1"`
	StudentAnswer string `json:"studentAnswer" binding:"required"`
}
