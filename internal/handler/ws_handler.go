package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openexam/openexam-backend/internal/config"
	"github.com/openexam/openexam-backend/internal/middleware"
	"github.com/openexam/openexam-backend/internal/repository"
	"github.com/openexam/openexam-backend/internal/response"
	"github.com/openexam/openexam-backend/internal/service"
	ws "github.com/openexam/openexam-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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

// WSHandler streams the attempt's live autosave channel. Answers land in a
// Redis hash immediately and are flushed to PostgreSQL asynchronously by the
// autosave worker; the same key-wise merge semantics apply on both paths.
type WSHandler struct {
	rdb            *redis.Client
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Real-time autosave and submission for one attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Ownership and liveness before upgrading.
	attempt, err := h.attemptService.GetState(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	if attempt.IsCompleted {
		response.Fail(c, http.StatusConflict, response.ErrAttemptCompleted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Attempt stream connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, attemptID, claims.UserID, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, attemptID, claims.UserID, msg.Forced)
			// The attempt is terminal either way after a successful submit.
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave buffers a single answer in Redis and queues it for
// asynchronous persistence. A failed tick is reported to the client and
// simply retried on its next interval; the in-memory answers are never lost.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, attemptID uuid.UUID, userID int, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.QID == "" {
		ws.WriteError(conn, "q_id is required")
		return
	}
	// Keys feed Redis hash fields and the merge patch; require a UUID.
	if _, err := uuid.Parse(msg.QID); err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	if err := h.rdb.HSet(ctx, answersKey, msg.QID, msg.Answer).Err(); err != nil {
		h.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Autosave Redis error")
		ws.WriteError(conn, "save failed")
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id": attemptID.String(),
		"user_id":    userID,
		"q_id":       msg.QID,
		"answer":     msg.Answer,
		"time_taken": msg.TimeTaken,
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)

	_ = ws.WriteTyped(conn, ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

// handleSubmit flushes the Redis answer buffer into the store with a final
// synchronous merge, then seals and grades the attempt. On deadline expiry
// the client sends forced=true; the service re-derives expiry from persisted
// state anyway, so a lying client gains nothing.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, userID int, forced bool) {
	ctx := context.Background()

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())
	buffered, err := h.rdb.HGetAll(ctx, answersKey).Result()
	if err != nil {
		wsLog.Error().Err(err).Msg("Read answer buffer error")
		ws.WriteError(conn, "failed to read buffered answers")
		return
	}

	if len(buffered) > 0 {
		if _, err := h.attemptService.Save(ctx, attemptID, userID, buffered, nil); err != nil {
			// Completed means a concurrent submit already won; fall through
			// and let Submit report the conflict.
			if !errors.Is(err, repository.ErrConflict) {
				wsLog.Error().Err(err).Msg("Final merge error")
				ws.WriteError(conn, "failed to persist answers")
				return
			}
		}
	}

	result, err := h.attemptService.Submit(ctx, attemptID, userID, forced)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			ws.WriteError(conn, "attempt already submitted")
			return
		}
		wsLog.Error().Err(err).Msg("Submit error")
		ws.WriteError(conn, "submission failed")
		return
	}

	// Buffer is no longer needed once the attempt is sealed.
	_ = h.rdb.Del(ctx, answersKey).Err()

	_ = ws.WriteTyped(conn, ws.GradedResponse{
		Event:         ws.EventGraded,
		Score:         result.Score,
		TotalMarks:    result.TotalMarks,
		AutoSubmitted: result.AutoSubmitted,
	})
}
