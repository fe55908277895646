package model

import (
	"time"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusNotStarted ExamStatus = "not_started"
	ExamStatusInProgress ExamStatus = "in_progress"
	ExamStatusFinished   ExamStatus = "finished"
	ExamStatusCancelled  ExamStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExamStatus) Terminal() bool {
	return s == ExamStatusFinished || s == ExamStatusCancelled
}

// Exam represents a scheduled instance of a paper with a time window.
type Exam struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	PaperID   int64      `json:"paper_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Duration  int        `json:"duration"` // minutes
	Status    ExamStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StatusForTime derives the time-based status of the exam at the given instant.
func (e *Exam) StatusForTime(now time.Time) ExamStatus {
	switch {
	case now.Before(e.StartTime):
		return ExamStatusNotStarted
	case now.After(e.EndTime):
		return ExamStatusFinished
	default:
		return ExamStatusInProgress
	}
}

// TransitionRequest is the payload for a manual exam status transition.
type TransitionRequest struct {
	Status ExamStatus `json:"status" binding:"required,oneof=in_progress finished cancelled"`
}
