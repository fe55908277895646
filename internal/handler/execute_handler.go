package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/lock"
	"github.com/edukit/examgate-backend/internal/middleware"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/repository"
	"github.com/edukit/examgate-backend/internal/response"
	"github.com/edukit/examgate-backend/internal/service"
	"github.com/edukit/examgate-backend/internal/validator"
)

// examTokenHeader carries the per-exam entry token on start, answer, and
// submit requests. The JWT authenticates the student; this header proves the
// exam run is still the active one.
const examTokenHeader = "X-Exam-Token"

// ExecuteHandler serves the student-facing exam execution endpoints.
type ExecuteHandler struct {
	exams   *repository.ExamRepository
	records *repository.ExamRecordRepository
	tokens  *service.TokenService
	answers *service.AnswerService
	submit  *service.SubmitService
	locks   *lock.Service
	cfg     *config.Config
	log     zerolog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(exams *repository.ExamRepository, records *repository.ExamRecordRepository,
	tokens *service.TokenService, answers *service.AnswerService, submit *service.SubmitService,
	locks *lock.Service, cfg *config.Config, log zerolog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exams:   exams,
		records: records,
		tokens:  tokens,
		answers: answers,
		submit:  submit,
		locks:   locks,
		cfg:     cfg,
		log:     log.With().Str("component", "execute_handler").Logger(),
	}
}

// GetToken godoc
// GET /exam-online/execute/token/:examId
// Returns the active entry token for a running exam. Guarded by a per-student
// lock so a double-clicking client cannot race itself.
func (h *ExecuteHandler) GetToken(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrAuthMissing)
		return
	}
	examID, ok := paramID(c, "examId")
	if !ok {
		return
	}

	exam, err := h.exams.GetByID(c.Request.Context(), examID)
	if err != nil {
		failLookup(c, err, response.ErrExamNotFound)
		return
	}
	if exam.Status != model.ExamStatusInProgress {
		response.Fail(c, response.ErrExamNotActive)
		return
	}

	var token string
	lockKey := config.CacheKey.TokenLockKey(examID, claims.UserID)
	err = h.locks.WithLockWaiting(c.Request.Context(), lockKey, h.cfg.LockTTL, h.cfg.LockWait, func() error {
		var inner error
		token, inner = h.tokens.Get(c.Request.Context(), examID)
		if inner != nil {
			return inner
		}
		if token == "" {
			// Manual start can race the scheduler's issue; mint here.
			token, inner = h.tokens.Issue(c.Request.Context(), examID, exam.EndTime)
		}
		return inner
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, token)
}

// StartExam godoc
// POST /exam-online/execute/start/:examId
// Validates the entry token and returns the student's participation record
// ID, creating the record on first entry. Idempotent under the per-student
// start lock.
func (h *ExecuteHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrAuthMissing)
		return
	}
	examID, ok := paramID(c, "examId")
	if !ok {
		return
	}

	exam, err := h.exams.GetByID(c.Request.Context(), examID)
	if err != nil {
		failLookup(c, err, response.ErrExamNotFound)
		return
	}
	if exam.Status != model.ExamStatusInProgress {
		response.Fail(c, response.ErrExamNotActive)
		return
	}
	if _, ok := h.activeToken(c, examID); !ok {
		return
	}

	var rec *model.ExamRecord
	lockKey := config.CacheKey.StartLockKey(examID, claims.UserID)
	err = h.locks.WithLockWaiting(c.Request.Context(), lockKey, h.cfg.LockTTL, h.cfg.LockWait, func() error {
		existing, inner := h.records.GetByExamAndStudent(c.Request.Context(), examID, claims.UserID)
		if inner == nil {
			rec = existing
			return nil
		}
		if !errors.Is(inner, repository.ErrNotFound) {
			return inner
		}

		rec = &model.ExamRecord{ExamID: examID, StudentID: claims.UserID, PaperID: exam.PaperID}
		return h.records.Create(c.Request.Context(), rec)
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	if rec.Status != "" && rec.Status != model.RecordStatusInProgress {
		response.Fail(c, response.ErrStateConflict)
		return
	}

	response.Success(c, rec.ID)
}

// GetRecord godoc
// GET /exam-online/execute/record/:examRecordId
// Returns the participation record, owner-only.
func (h *ExecuteHandler) GetRecord(c *gin.Context) {
	rec, ok := h.ownedRecord(c)
	if !ok {
		return
	}
	response.Success(c, model.ExamRecordInfo{
		ExamRecordID: rec.ID,
		ExamID:       rec.ExamID,
		PaperID:      rec.PaperID,
	})
}

// SaveAnswer godoc
// POST /exam-online/execute/answer
// Buffers a single answer. The entry token and the exam's running status are
// both re-checked, so saves against a finished or superseded run bounce.
func (h *ExecuteHandler) SaveAnswer(c *gin.Context) {
	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, fields)
		return
	}

	rec, ok := h.ownedRecordByID(c, req.ExamRecordID)
	if !ok {
		return
	}
	if rec.Status != model.RecordStatusInProgress {
		response.Fail(c, response.ErrStateConflict)
		return
	}

	token, ok := h.activeToken(c, rec.ExamID)
	if !ok {
		return
	}

	progress, err := h.answers.SaveAnswer(c.Request.Context(), token, rec.ID, req.QuestionID, req.StudentAnswer)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, progress)
}

// GetProgress godoc
// GET /exam-online/execute/progress/:examRecordId
// Returns the participant's answered-question count, owner-only.
func (h *ExecuteHandler) GetProgress(c *gin.Context) {
	rec, ok := h.ownedRecord(c)
	if !ok {
		return
	}

	progress, err := h.answers.GetProgress(c.Request.Context(), rec.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, progress)
}

// GetAnsweredQuestions godoc
// GET /exam-online/execute/answered/:examRecordId
// Returns the question IDs with buffered answers, so a reconnecting client
// can restore its local state. Owner-only.
func (h *ExecuteHandler) GetAnsweredQuestions(c *gin.Context) {
	rec, ok := h.ownedRecord(c)
	if !ok {
		return
	}
	token, ok := h.activeToken(c, rec.ExamID)
	if !ok {
		return
	}

	ids, err := h.answers.AnsweredQuestionIDs(c.Request.Context(), token, rec.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, ids)
}

// SubmitExam godoc
// POST /exam-online/execute/submit/:examRecordId
// Manual early submission: flushes buffered answers and closes the record.
// The exam token stays valid for the rest of the cohort.
func (h *ExecuteHandler) SubmitExam(c *gin.Context) {
	rec, ok := h.ownedRecord(c)
	if !ok {
		return
	}
	if rec.Status != model.RecordStatusInProgress {
		response.Fail(c, response.ErrStateConflict)
		return
	}

	token, ok := h.activeToken(c, rec.ExamID)
	if !ok {
		return
	}

	if err := h.submit.SubmitStudentExam(c.Request.Context(), token, rec.ID, model.RecordStatusSubmitted); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessMessage(c, "exam submitted")
}

// ownedRecord loads the record named by the :examRecordId param and enforces
// ownership.
func (h *ExecuteHandler) ownedRecord(c *gin.Context) (*model.ExamRecord, bool) {
	recordID, ok := paramID(c, "examRecordId")
	if !ok {
		return nil, false
	}
	return h.ownedRecordByID(c, recordID)
}

func (h *ExecuteHandler) ownedRecordByID(c *gin.Context, recordID int64) (*model.ExamRecord, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrAuthMissing)
		return nil, false
	}

	rec, err := h.records.GetByID(c.Request.Context(), recordID)
	if err != nil {
		failLookup(c, err, response.ErrRecordNotFound)
		return nil, false
	}
	// Ownership failures read the same as absence, so record IDs cannot be
	// probed.
	if rec.StudentID != claims.UserID {
		response.Fail(c, response.ErrRecordNotFound)
		return nil, false
	}
	return rec, true
}

// activeToken reads the entry token header and validates it against the exam.
func (h *ExecuteHandler) activeToken(c *gin.Context, examID int64) (string, bool) {
	token := c.GetHeader(examTokenHeader)
	if token == "" {
		response.Fail(c, response.ErrTokenMissing)
		return "", false
	}
	if !h.tokens.Validate(c.Request.Context(), examID, token) {
		response.Fail(c, response.ErrTokenInvalid)
		return "", false
	}
	return token, true
}

// paramID parses a positive int64 path parameter, failing the request on bad
// input.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, response.ErrValidation.WithMessagef("invalid %s", name))
		return 0, false
	}
	return id, true
}

// failLookup maps a repository miss onto the given domain error.
func failLookup(c *gin.Context, err error, notFound *response.AppError) {
	if errors.Is(err, repository.ErrNotFound) {
		response.Fail(c, notFound)
		return
	}
	response.Fail(c, err)
}
