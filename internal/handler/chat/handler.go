package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/service/orchestrator"
	"github.com/zhouzirui/z-tutor/backend/pkg/utils"
)

// Conversations is the part of the orchestrator the REST surface needs.
type Conversations interface {
	History(ctx context.Context, sessionID string) ([]chat.Turn, error)
	ClearConversation(ctx context.Context, sessionID string) error
}

// Handler 会话历史的HTTP处理器
type Handler struct {
	conversations Conversations
}

// New 创建会话处理器
func New(conversations Conversations) *Handler {
	return &Handler{conversations: conversations}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{userID}/{characterID}/history", h.handleHistory)
	r.Delete("/sessions/{userID}/{characterID}/history", h.handleClear)
}

func sessionID(r *http.Request) (string, bool) {
	key := chat.Key{UserID: chi.URLParam(r, "userID"), CharacterID: chi.URLParam(r, "characterID")}
	if _, ok := chat.ParseKey(key.ID()); !ok {
		return "", false
	}
	return key.ID(), true
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "invalid session")
		return
	}
	turns, err := h.conversations.History(r.Context(), id)
	if err != nil {
		respondFailure(w, id, err)
		return
	}
	if turns == nil {
		turns = []chat.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessionId": id, "turns": turns})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "invalid session")
		return
	}
	if err := h.conversations.ClearConversation(r.Context(), id); err != nil {
		respondFailure(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondFailure(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	log.Error().Err(err).Str("session", id).Msg("session request failed")
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
