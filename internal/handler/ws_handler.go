package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/examgate-backend/internal/config"
	"github.com/edukit/examgate-backend/internal/middleware"
	"github.com/edukit/examgate-backend/internal/model"
	"github.com/edukit/examgate-backend/internal/repository"
	"github.com/edukit/examgate-backend/internal/service"
	ws "github.com/edukit/examgate-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the realtime exam channel: behaviour signals inbound,
// progress, warnings, and status changes outbound.
type WSHandler struct {
	rdb       *redis.Client
	exams     *repository.ExamRepository
	records   *repository.ExamRecordRepository
	tokens    *service.TokenService
	answers   *service.AnswerService
	anticheat *service.AntiCheatService
	pusher    *service.Pusher
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, exams *repository.ExamRepository, records *repository.ExamRecordRepository,
	tokens *service.TokenService, answers *service.AnswerService, anticheat *service.AntiCheatService,
	pusher *service.Pusher, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:       rdb,
		exams:     exams,
		records:   records,
		tokens:    tokens,
		answers:   answers,
		anticheat: anticheat,
		pusher:    pusher,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/exam?token=<jwt>
// Upgrades to WebSocket. The client subscribes to its record, then sends
// heartbeat and focus signals and optionally buffers answers over the socket.
func (h *WSHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().Int64("student_id", claims.UserID).Logger()
	wsLog.Info().Msg("Student connected")

	var bound *model.ExamRecord
	var stopForward context.CancelFunc
	defer func() {
		if stopForward != nil {
			stopForward()
		}
		if bound != nil {
			h.checkAbandoned(bound, claims.UserID)
		}
	}()

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

		case ws.ActionSubscribe:
			rec, ok := h.resolveRecord(c.Request.Context(), conn, claims.UserID, msg.ExamRecordID)
			if !ok {
				continue
			}
			bound = rec
			if stopForward != nil {
				stopForward()
			}
			stopForward = h.startForwarder(conn, wsLog, rec)
			conn.WriteTyped(ws.SubscribedResponse{Event: ws.EventSubscribed})

		case ws.ActionHeartbeat:
			rec := h.boundOrResolve(c.Request.Context(), conn, claims.UserID, bound, msg.ExamRecordID)
			if rec == nil {
				continue
			}
			if err := h.anticheat.RecordHeartbeat(c.Request.Context(), rec.ID, claims.UserID); err != nil {
				wsLog.Error().Err(err).Msg("Heartbeat record failed")
			}

		case ws.ActionSwitch:
			rec := h.boundOrResolve(c.Request.Context(), conn, claims.UserID, bound, msg.ExamRecordID)
			if rec == nil {
				continue
			}
			if err := h.anticheat.RecordSwitch(c.Request.Context(), rec.ID, claims.UserID); err != nil {
				wsLog.Error().Err(err).Msg("Switch record failed")
				continue
			}
			h.pusher.PushWarning(c.Request.Context(), rec.ID, "tab switch detected")

		case ws.ActionBlur:
			rec := h.boundOrResolve(c.Request.Context(), conn, claims.UserID, bound, msg.ExamRecordID)
			if rec == nil {
				continue
			}
			if err := h.anticheat.RecordBlur(c.Request.Context(), rec.ID, claims.UserID); err != nil {
				wsLog.Error().Err(err).Msg("Blur record failed")
			}

		case ws.ActionFocus:
			rec := h.boundOrResolve(c.Request.Context(), conn, claims.UserID, bound, msg.ExamRecordID)
			if rec == nil {
				continue
			}
			if err := h.anticheat.RecordFocus(c.Request.Context(), rec.ID, claims.UserID); err != nil {
				wsLog.Error().Err(err).Msg("Focus record failed")
			}

		case ws.ActionAnswer:
			rec := h.boundOrResolve(c.Request.Context(), conn, claims.UserID, bound, msg.ExamRecordID)
			if rec == nil {
				continue
			}
			h.handleAnswer(c.Request.Context(), conn, wsLog, rec, &msg)

		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// handleAnswer buffers an answer sent over the socket. Same gates as the REST
// path: record in_progress, exam running, entry token valid.
func (h *WSHandler) handleAnswer(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, rec *model.ExamRecord, msg *ws.Request) {
	if msg.QuestionID <= 0 || msg.Answer == "" {
		conn.WriteError("questionId and answer are required")
		return
	}
	if rec.Status != model.RecordStatusInProgress {
		conn.WriteError("exam already submitted or finished")
		return
	}

	exam, err := h.exams.GetByID(ctx, rec.ExamID)
	if err != nil || exam.Status != model.ExamStatusInProgress {
		conn.WriteError("exam has not started or is already over")
		return
	}
	if !h.tokens.Validate(ctx, rec.ExamID, msg.ExamToken) {
		conn.WriteError("exam token invalid or expired")
		return
	}

	progress, err := h.answers.SaveAnswer(ctx, msg.ExamToken, rec.ID, msg.QuestionID, msg.Answer)
	if err != nil {
		wsLog.Error().Err(err).Int64("question_id", msg.QuestionID).Msg("Answer buffer failed")
		conn.WriteError("save failed")
		return
	}

	conn.WriteTyped(ws.SavedResponse{
		Event:      ws.EventSaved,
		QuestionID: msg.QuestionID,
		Progress:   progress,
	})
}

// checkAbandoned runs the stale-heartbeat check when a subscribed participant
// disconnects. A heartbeat that was already stale means the client stopped
// pinging well before the socket closed. The request context is gone by this
// point, so the check carries its own deadline.
func (h *WSHandler) checkAbandoned(rec *model.ExamRecord, studentID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.anticheat.DetectAbnormal(ctx, rec.ID, studentID); err != nil {
		h.log.Error().Err(err).Int64("exam_record_id", rec.ID).Msg("Abandon check failed")
	}
}

// startForwarder subscribes to the record's push channels and relays messages
// to the client until the returned cancel func fires.
func (h *WSHandler) startForwarder(conn *ws.Conn, wsLog zerolog.Logger, rec *model.ExamRecord) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())

	progressCh := config.CacheKey.ProgressTopic(rec.ID)
	warningCh := config.CacheKey.WarningQueue(rec.ID)
	statusCh := config.CacheKey.StatusTopic(rec.ExamID)

	pubsub := h.rdb.Subscribe(ctx, progressCh, warningCh, statusCh)

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				switch msg.Channel {
				case progressCh:
					progress, err := strconv.ParseInt(msg.Payload, 10, 64)
					if err != nil {
						continue
					}
					conn.WriteTyped(ws.ProgressResponse{Event: ws.EventProgress, Progress: progress})
				case warningCh:
					conn.WriteTyped(ws.WarningResponse{Event: ws.EventWarning, Message: msg.Payload})
				case statusCh:
					conn.WriteTyped(ws.ExamStatusResponse{Event: ws.EventExamStatus, Status: msg.Payload})
				}
			}
		}
	}()

	wsLog.Debug().Int64("exam_record_id", rec.ID).Msg("Push forwarder attached")
	return cancel
}

// resolveRecord loads a record and enforces ownership, reporting failures to
// the client.
func (h *WSHandler) resolveRecord(ctx context.Context, conn *ws.Conn, studentID, recordID int64) (*model.ExamRecord, bool) {
	if recordID <= 0 {
		conn.WriteError("examRecordId is required")
		return nil, false
	}
	rec, err := h.records.GetByID(ctx, recordID)
	if err != nil || rec.StudentID != studentID {
		conn.WriteError("exam record not found or not yours")
		return nil, false
	}
	return rec, true
}

// boundOrResolve returns the subscribed record, or resolves the one named in
// the message when it differs or nothing is bound yet.
func (h *WSHandler) boundOrResolve(ctx context.Context, conn *ws.Conn, studentID int64, bound *model.ExamRecord, recordID int64) *model.ExamRecord {
	if bound != nil && (recordID == 0 || recordID == bound.ID) {
		return bound
	}
	rec, ok := h.resolveRecord(ctx, conn, studentID, recordID)
	if !ok {
		return nil
	}
	return rec
}
