// Package event defines the server-to-client events and the per-connection
// outbound queue they travel through.
package event

import (
	"time"

	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/model/language"
)

// Name is the wire name of an event.
type Name string

const (
	ConnectionStatus    Name = "connection_status"
	CharacterThinking   Name = "character_thinking"
	CharacterStream     Name = "character_stream"
	CharacterResponse   Name = "character_response"
	VRMAnimation        Name = "vrm_animation"
	VoiceAudio          Name = "voice_audio"
	PerformanceMetrics  Name = "performance_metrics"
	StreamWarning       Name = "stream_warning"
	Error               Name = "error"
	CharacterSwitched   Name = "character_switched"
	ConversationHistory Name = "conversation_history"
	ConversationCleared Name = "conversation_cleared"
)

// Advisory reports whether the event may be dropped under backpressure.
func (n Name) Advisory() bool {
	return n == PerformanceMetrics || n == StreamWarning
}

// Event is the envelope written to the client.
type Event struct {
	Name      Name   `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	TurnID    string `json:"turnId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// New stamps an event with the current time in milliseconds.
func New(name Name, sessionID, turnID string, data any, now time.Time) Event {
	return Event{Name: name, SessionID: sessionID, TurnID: turnID, Timestamp: now.UnixMilli(), Data: data}
}

type ConnectionPayload struct {
	Connected bool `json:"connected"`
}

type ThinkingPayload struct {
	Thinking bool `json:"thinking"`
}

type StreamPayload struct {
	Text       string `json:"text"`
	IsComplete bool   `json:"isComplete"`
}

type ResponsePayload struct {
	Text        string              `json:"text"`
	Emotion     string              `json:"emotion"`
	Intensity   float64             `json:"intensity"`
	IsError     bool                `json:"isError"`
	Fallback    bool                `json:"fallback"`
	LanguageMix *language.MixRecord `json:"languageMix,omitempty"`
}

type AnimationPayload struct {
	Emotion     string         `json:"emotion"`
	Animation   string         `json:"animation"`
	Duration    float64        `json:"duration"` // seconds
	Blendshapes avatar.Weights `json:"blendshapes,omitempty"`
}

type VoicePayload struct {
	AudioURL string          `json:"audioUrl"`
	Text     string          `json:"text"`
	Emotion  string          `json:"emotion"`
	Duration float64         `json:"duration"` // seconds
	Visemes  []avatar.Viseme `json:"visemes"`
}

type MetricsPayload struct {
	ResponseTime   int64 `json:"responseTime"` // milliseconds
	IsSlowResponse bool  `json:"isSlowResponse"`
	Timestamp      int64 `json:"timestamp"`
}

type WarningPayload struct {
	Message  string `json:"message"`
	Duration int64  `json:"duration"` // milliseconds
}

// Error types carried by ErrorPayload.Type.
const (
	ErrTypeGeneration = "generation_failed"
	ErrTypeBusy       = "session_busy"
	ErrTypeBadRequest = "bad_request"
	ErrTypeCharacter  = "unknown_character"
	ErrTypeSession    = "session_not_found"
)

type ErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type SwitchedPayload struct {
	CharacterID string `json:"characterId"`
	Name        string `json:"name"`
	OpeningLine string `json:"openingLine"`
	Language    string `json:"language"`
}

type HistoryPayload struct {
	Turns []chat.Turn `json:"turns"`
}

type ClearedPayload struct {
	Cleared bool `json:"cleared"`
}
