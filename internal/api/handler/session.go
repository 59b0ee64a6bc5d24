package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Zagas-life-dev/studybetterlib/internal/api/middleware"
	"github.com/Zagas-life-dev/studybetterlib/internal/api/response"
	"github.com/Zagas-life-dev/studybetterlib/internal/domain"
	"github.com/Zagas-life-dev/studybetterlib/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxMessageLength = 8000

// SessionHandler handles chat session and message endpoints
type SessionHandler struct {
	chatService *service.ChatService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(chatService *service.ChatService) *SessionHandler {
	return &SessionHandler{chatService: chatService}
}

// List returns the caller's sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	sessions, err := h.chatService.ListSessions(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w, "failed to list sessions")
		return
	}

	response.OK(w, sessions)
}

// Create creates a new chat session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req struct {
		Title    string     `json:"title"`
		CourseID *uuid.UUID `json:"course_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Optional body
	}

	session, err := h.chatService.CreateSession(r.Context(), userID, req.CourseID, req.Title)
	if err != nil {
		response.InternalError(w, "failed to create session")
		return
	}

	response.Created(w, session)
}

// Get returns one session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	session, err := h.chatService.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "failed to fetch session")
		return
	}

	response.OK(w, session)
}

// Update applies a partial update to a session
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	var update domain.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(update); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	session, err := h.chatService.UpdateSession(r.Context(), sessionID, userID, update)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "failed to update session")
		return
	}

	response.OK(w, session)
}

// Delete deletes a session
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	if err := h.chatService.DeleteSession(r.Context(), sessionID, userID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "failed to delete session")
		return
	}

	response.NoContent(w)
}

// GetMessages returns recent messages of a session
func (h *SessionHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	messages, err := h.chatService.GetSessionHistory(r.Context(), sessionID, userID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, domain.ErrHistoryUnavailable):
			response.Error(w, http.StatusServiceUnavailable, err.Error())
		default:
			response.InternalError(w, "failed to fetch messages")
		}
		return
	}

	response.OK(w, messages)
}

// PostMessage runs one chat turn
func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		response.BadRequest(w, "content is required")
		return
	}
	if len(req.Content) > maxMessageLength {
		response.BadRequest(w, "content too long")
		return
	}

	result, err := h.chatService.HandleTurn(r.Context(), sessionID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, domain.ErrHistoryUnavailable):
			response.Error(w, http.StatusServiceUnavailable, err.Error())
		default:
			response.InternalError(w, "failed to process message")
		}
		return
	}

	response.OK(w, result)
}

// sessionScope extracts the caller and the session ID from the request.
func (h *SessionHandler) sessionScope(w http.ResponseWriter, r *http.Request) (userID, sessionID uuid.UUID, ok bool) {
	userID, authed := middleware.GetUserID(r.Context())
	if !authed {
		response.Unauthorized(w, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.BadRequest(w, "invalid session ID")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, sessionID, true
}
