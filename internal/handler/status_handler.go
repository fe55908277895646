package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/response"
	"github.com/edukit/examgate-backend/internal/service"
	"github.com/edukit/examgate-backend/internal/validator"
)

// StatusHandler serves the staff-facing exam lifecycle endpoint.
type StatusHandler struct {
	status *service.StatusService
	log    zerolog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(status *service.StatusService, log zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		status: status,
		log:    log.With().Str("component", "status_handler").Logger(),
	}
}

// Transition godoc
// POST /exam-online/execute/status/:examId
// Manually moves an exam through its lifecycle: early start, early finish,
// or cancellation before the start.
func (h *StatusHandler) Transition(c *gin.Context) {
	examID, ok := paramID(c, "examId")
	if !ok {
		return
	}

	var req model.TransitionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, fields)
		return
	}

	exam, err := h.status.Transition(c.Request.Context(), examID, req.Status)
	if err != nil {
		failLookup(c, err, response.ErrExamNotFound)
		return
	}

	response.Success(c, gin.H{
		"examId": exam.ID,
		"status": exam.Status,
	})
}
