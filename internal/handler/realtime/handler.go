// Package realtime serves the tutor conversation over a websocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/event"
	"github.com/zhouzirui/z-tutor/backend/internal/metrics"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
	"github.com/zhouzirui/z-tutor/backend/internal/service/orchestrator"
	"github.com/zhouzirui/z-tutor/backend/internal/service/voice"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	maxFrameSize = 64 << 10
)

// Client event names.
const (
	SwitchCharacter   = "switch_character"
	SendMessage       = "send_message"
	RequestVoice      = "request_voice"
	ClearConversation = "clear_conversation"
	GetHistory        = "get_history"
	Reconnect         = "reconnect"
)

// Orchestrator is what a connection drives.
type Orchestrator interface {
	Open(ctx context.Context, userID, characterID, language string, sink event.Sink) (string, error)
	Release(sessionID string, sink event.Sink) error
	HandleMessage(ctx context.Context, sessionID, text string) (string, error)
	RequestVoice(ctx context.Context, sessionID, text, emotion string) error
	ClearConversation(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string) ([]chat.Turn, error)
}

// Handler WebSocket会话处理器
type Handler struct {
	orch       Orchestrator
	outboxSize int
	upgrader   websocket.Upgrader
}

// New 创建WebSocket处理器
func New(orch Orchestrator, outboxSize int) *Handler {
	return &Handler{
		orch:       orch,
		outboxSize: outboxSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type switchData struct {
	CharacterID string `json:"characterId"`
	Language    string `json:"language"`
}

type messageData struct {
	Text string `json:"text"`
}

type voiceData struct {
	Text    string `json:"text"`
	Emotion string `json:"emotion"`
}

// connection is the state of one socket. Only the read loop touches it.
type connection struct {
	userID      string
	characterID string
	sessionID   string
	queue       *event.Queue
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" || strings.Contains(userID, ":") {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &connection{
		userID: userID,
		queue: event.NewQueue(h.outboxSize, event.WithDropHook(func(e event.Event) {
			metrics.DroppedEvents.WithLabelValues(string(e.Name)).Inc()
		})),
	}
	defer c.queue.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer c.queue.Close()
		writeLoop(ctx, conn, c.queue)
	}()

	log.Info().Str("user", userID).Msg("websocket connected")
	_ = c.queue.Publish(ctx, event.New(event.ConnectionStatus, "", "", event.ConnectionPayload{Connected: true}, time.Now()))

	if characterID := r.URL.Query().Get("characterId"); characterID != "" {
		h.switchCharacter(ctx, c, switchData{CharacterID: characterID, Language: r.URL.Query().Get("language")})
	}

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user", userID).Msg("websocket read error")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.dispatch(ctx, c, msg)
	}

	if c.sessionID != "" {
		if err := h.orch.Release(c.sessionID, c.queue); err != nil && !errors.Is(err, orchestrator.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session", c.sessionID).Msg("failed to release session")
		}
	}
	cancel()
	<-writerDone
	log.Info().Str("user", userID).Msg("websocket disconnected")
}

func (h *Handler) dispatch(ctx context.Context, c *connection, msg inbound) {
	switch msg.Event {
	case SwitchCharacter:
		var data switchData
		if !h.decode(ctx, c, msg.Data, &data) {
			return
		}
		h.switchCharacter(ctx, c, data)

	case Reconnect:
		if c.characterID == "" {
			h.fail(ctx, c, orchestrator.ErrSessionNotFound)
			return
		}
		h.switchCharacter(ctx, c, switchData{CharacterID: c.characterID})

	case SendMessage:
		var data messageData
		if !h.decode(ctx, c, msg.Data, &data) {
			return
		}
		if _, err := h.orch.HandleMessage(ctx, c.sessionID, data.Text); err != nil {
			h.fail(ctx, c, err)
		}

	case RequestVoice:
		var data voiceData
		if !h.decode(ctx, c, msg.Data, &data) {
			return
		}
		if err := h.orch.RequestVoice(ctx, c.sessionID, data.Text, data.Emotion); err != nil {
			h.fail(ctx, c, err)
		}

	case ClearConversation:
		if err := h.orch.ClearConversation(ctx, c.sessionID); err != nil {
			h.fail(ctx, c, err)
		}

	case GetHistory:
		turns, err := h.orch.History(ctx, c.sessionID)
		if err != nil {
			h.fail(ctx, c, err)
			return
		}
		if turns == nil {
			turns = []chat.Turn{}
		}
		_ = c.queue.Publish(ctx, event.New(event.ConversationHistory, c.sessionID, "", event.HistoryPayload{Turns: turns}, time.Now()))

	default:
		h.sendError(ctx, c, "unknown event "+msg.Event, event.ErrTypeBadRequest)
	}
}

// switchCharacter 切换角色：先打开新会话，成功后再释放旧会话。
func (h *Handler) switchCharacter(ctx context.Context, c *connection, data switchData) {
	id := strings.TrimSpace(data.CharacterID)
	if id == "" {
		h.sendError(ctx, c, "characterId is required", event.ErrTypeBadRequest)
		return
	}

	sessionID, err := h.orch.Open(ctx, c.userID, id, data.Language, c.queue)
	if err != nil {
		h.fail(ctx, c, err)
		return
	}
	if c.sessionID != "" && c.sessionID != sessionID {
		if err := h.orch.Release(c.sessionID, c.queue); err != nil && !errors.Is(err, orchestrator.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session", c.sessionID).Msg("failed to release previous session")
		}
	}
	c.sessionID, c.characterID = sessionID, id
}

func (h *Handler) decode(ctx context.Context, c *connection, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		h.sendError(ctx, c, "invalid event data", event.ErrTypeBadRequest)
		return false
	}
	return true
}

func (h *Handler) fail(ctx context.Context, c *connection, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrSessionBusy):
		h.sendError(ctx, c, "the character is still answering", event.ErrTypeBusy)
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		h.sendError(ctx, c, "no active character, send switch_character first", event.ErrTypeSession)
	case errors.Is(err, persona.ErrUnknownCharacter):
		h.sendError(ctx, c, err.Error(), event.ErrTypeCharacter)
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		h.sendError(ctx, c, "text is required", event.ErrTypeBadRequest)
	case errors.Is(err, voice.ErrDisabled):
		h.sendError(ctx, c, "voice synthesis is not available", event.ErrTypeBadRequest)
	default:
		log.Error().Err(err).Str("session", c.sessionID).Msg("websocket request failed")
		h.sendError(ctx, c, "internal error", event.ErrTypeBadRequest)
	}
}

func (h *Handler) sendError(ctx context.Context, c *connection, message, kind string) {
	_ = c.queue.Publish(ctx, event.New(event.Error, c.sessionID, "", event.ErrorPayload{Message: message, Type: kind}, time.Now()))
}

// writeLoop is the only writer of conn; pings share it.
func writeLoop(ctx context.Context, conn *websocket.Conn, q *event.Queue) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-q.Done():
			return
		case e := <-q.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
