package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/Zagas-life-dev/studybetterlib/internal/api/middleware"
	"github.com/Zagas-life-dev/studybetterlib/internal/api/response"
	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/Zagas-life-dev/studybetterlib/internal/realtime"
	"github.com/Zagas-life-dev/studybetterlib/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler streams new-message events of one session over a websocket
type WSHandler struct {
	chatService *service.ChatService
	notifier    *realtime.Notifier
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(chatService *service.ChatService, notifier *realtime.Notifier) *WSHandler {
	return &WSHandler{chatService: chatService, notifier: notifier}
}

// Subscribe upgrades the connection and forwards message events until
// the client disconnects.
func (h *WSHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.BadRequest(w, "invalid session ID")
		return
	}

	// Ownership check before upgrading.
	if _, err := h.chatService.GetSession(r.Context(), sessionID, userID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "failed to fetch session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.notifier.Subscribe(sessionID)
	defer unsubscribe()

	// Drain client frames so close and pong frames get processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
