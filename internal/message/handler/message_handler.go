// Package handler exposes the reliable message channel: a plain
// request/response HTTP API whose 2xx answer is the only thing the client
// outbox treats as proof of acceptance. Message submission never happens
// over the live socket.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gorelay/internal/common"
	"gorelay/internal/message/service"
	"gorelay/internal/protocol"
)

type MessageHandler struct {
	messageService service.MessageService
}

func NewMessageHandler(messageService service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// Register mounts the reliable-channel routes on an authenticated router.
func (h *MessageHandler) Register(r *mux.Router) {
	r.HandleFunc("/messages", h.PostMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/read", h.PostRead).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomID}/messages", h.GetHistory).Methods(http.MethodGet)
}

// SendMessageRequest is the reliable-channel submit body. The id is the
// client-generated UUID; resubmitting the same id is safe.
type SendMessageRequest struct {
	ID        string           `json:"id"`
	RoomID    string           `json:"room_id"`
	Content   protocol.Content `json:"content"`
	CreatedAt time.Time        `json:"created_at"`
	ReplyTo   string           `json:"reply_to,omitempty"`
}

// SendMessageResponse acknowledges acceptance with the canonical id.
type SendMessageResponse struct {
	ServerID  uint64    `json:"server_id"`
	CreatedAt time.Time `json:"created_at"`
	Duplicate bool      `json:"duplicate"`
}

func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	msg := &protocol.Message{
		ID:        req.ID,
		RoomID:    req.RoomID,
		SenderID:  userID, // sender comes from the session, never the body
		Content:   req.Content,
		CreatedAt: req.CreatedAt,
		ReplyTo:   req.ReplyTo,
	}

	saved, duplicate, err := h.messageService.Ingest(r.Context(), msg)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{
		ServerID:  saved.ServerID,
		CreatedAt: saved.CreatedAt,
		Duplicate: duplicate,
	})
}

func (h *MessageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	roomID := mux.Vars(r)["roomID"]
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	messages, err := h.messageService.History(r.Context(), roomID, userID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *MessageHandler) PostRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not authenticated", http.StatusUnauthorized)
		return
	}

	messageID := mux.Vars(r)["id"]
	if err := h.messageService.MarkRead(r.Context(), messageID, userID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the error taxonomy onto HTTP statuses. 4xx
// answers are terminal for the client outbox; 5xx answers are retried.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, common.ErrNotRoomMember):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, common.ErrUnauthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		log.Printf("message handler internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
