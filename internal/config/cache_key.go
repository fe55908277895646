package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamTokenKey returns the cache key holding the active token for an exam.
func (r *CacheKeyStruct) ExamTokenKey(examID int64) string {
	return fmt.Sprintf("exam:token:%d", examID)
}

// AnswerKey returns the cache key for a single cached answer cell.
// The token namespaces the key so a reissued token partitions a new run.
func (r *CacheKeyStruct) AnswerKey(token string, examRecordID, questionID int64) string {
	return fmt.Sprintf("exam:answer:%s:%d:%d", token, examRecordID, questionID)
}

// AnsweredSetKey returns the cache key for a participant's answered-question set.
func (r *CacheKeyStruct) AnsweredSetKey(token string, examRecordID int64) string {
	return fmt.Sprintf("exam:answered:%s:%d", token, examRecordID)
}

// DirtySetKey returns the cache key for a participant's pending-sync set.
func (r *CacheKeyStruct) DirtySetKey(token string, examRecordID int64) string {
	return fmt.Sprintf("exam:sync:queue:%s:%d", token, examRecordID)
}

// DirtySetPattern is the scan pattern matching every pending-sync set.
const DirtySetPattern = "exam:sync:queue:*"

// DirtySetPrefix is the literal prefix of every pending-sync set key.
const DirtySetPrefix = "exam:sync:queue:"

// ProgressKey returns the cache key for a participant's progress counter.
func (r *CacheKeyStruct) ProgressKey(examRecordID int64) string {
	return fmt.Sprintf("exam:progress:%d", examRecordID)
}

// SubmitQueueKey returns the cache key for an exam's FIFO submission queue.
func (r *CacheKeyStruct) SubmitQueueKey(examID int64) string {
	return fmt.Sprintf("exam:submit:queue:%d", examID)
}

// SubmitQueuePattern is the scan pattern matching every submission queue.
const SubmitQueuePattern = "exam:submit:queue:*"

// TimeoutExamSetKey is the set of exam IDs awaiting timeout processing.
const TimeoutExamSetKey = "exam:timeout:exams"

// SwitchCountKey returns the cache key for a participant's switch counter.
func (r *CacheKeyStruct) SwitchCountKey(examRecordID, studentID int64) string {
	return fmt.Sprintf("exam:switch:%d:%d", examRecordID, studentID)
}

// HeartbeatKey returns the cache key for a participant's liveness timestamp.
func (r *CacheKeyStruct) HeartbeatKey(examRecordID, studentID int64) string {
	return fmt.Sprintf("exam:heartbeat:%d:%d", examRecordID, studentID)
}

// BlurKey returns the cache key stamping when a participant's window lost focus.
func (r *CacheKeyStruct) BlurKey(examRecordID, studentID int64) string {
	return fmt.Sprintf("exam:focus:%d:%d", examRecordID, studentID)
}

// TokenLockKey returns the lock key guarding token issuance for a student.
func (r *CacheKeyStruct) TokenLockKey(examID, studentID int64) string {
	return fmt.Sprintf("lock:exam:token:%d:%d", examID, studentID)
}

// StartLockKey returns the lock key guarding exam entry for a student.
func (r *CacheKeyStruct) StartLockKey(examID, studentID int64) string {
	return fmt.Sprintf("lock:exam:start:%d:%d", examID, studentID)
}

// ProgressTopic returns the Pub/Sub channel for a participant's progress pushes.
func (r *CacheKeyStruct) ProgressTopic(examRecordID int64) string {
	return fmt.Sprintf("/topic/exam/progress/%d", examRecordID)
}

// WarningQueue returns the Pub/Sub channel for a participant's warning pushes.
func (r *CacheKeyStruct) WarningQueue(examRecordID int64) string {
	return fmt.Sprintf("/queue/exam/warning/%d", examRecordID)
}

// StatusTopic returns the Pub/Sub channel broadcasting an exam's status changes.
func (r *CacheKeyStruct) StatusTopic(examID int64) string {
	return fmt.Sprintf("/topic/exam/status/%d", examID)
}

var CacheKey = NewCacheKeyStruct()
