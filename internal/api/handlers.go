package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutor360/tutorvoice/internal/storage/sqlite"
	"github.com/tutor360/tutorvoice/internal/voicechat"
	"github.com/tutor360/tutorvoice/internal/websocket"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// Handler contains the HTTP handlers for the API.
type Handler struct {
	chatService *voicechat.Service
	turnStorage *sqlite.TurnStorage
	wsServer    *websocket.Server
	logger      *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(chatService *voicechat.Service, turnStorage *sqlite.TurnStorage, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		chatService: chatService,
		turnStorage: turnStorage,
		wsServer:    wsServer,
		logger:      log.Named("api-handler"),
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetHealth reports service liveness.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// CreateSession starts a new conversation session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req voicechat.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.TargetLanguage == "" {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "target_language is required"})
		return
	}

	info, err := h.chatService.CreateSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, voicechat.ErrQuotaExhausted) {
			WriteJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
			return
		}
		var sessErr *voicechat.SessionError
		if errors.As(err, &sessErr) {
			h.logger.Error("Session setup failed",
				logger.String("kind", sessErr.Kind.String()),
				logger.Error(sessErr.Err))
			WriteJSON(w, http.StatusBadGateway, errorResponse{Error: sessErr.Error()})
			return
		}
		h.logger.Error("Failed to create session", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create session"})
		return
	}

	WriteJSON(w, http.StatusCreated, info)
}

// ListSessions returns all registered sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": h.chatService.ListSessions(),
	})
}

// GetSession returns one session's status.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	info, err := h.chatService.GetSession(sessionID)
	if err != nil {
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

// EndSession terminates a session.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if err := h.chatService.EndSession(sessionID); err != nil {
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ended"})
}

// SendMessage injects a typed user message into a session.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}

	if err := h.chatService.SendText(sessionID, req.Text); err != nil {
		if errors.Is(err, voicechat.ErrSessionNotFound) {
			WriteJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
			return
		}
		WriteJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

// GetTranscript returns the live transcript of a session.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	turns, err := h.chatService.Transcript(sessionID)
	if err != nil {
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// GetHistory returns the persisted turns of a session, live or past.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	records, err := h.turnStorage.GetTurns(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session history", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load history"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      records,
	})
}

// GetUsage reports today's remaining conversation allowance.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.chatService.RemainingSeconds(r.Context())
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"enabled":           true,
		"remaining_seconds": remaining,
	})
}

// HandleWebSocket upgrades the request into a transcript observer.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}
