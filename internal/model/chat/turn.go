package chat

import (
	"time"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/model/language"
)

// TurnState tracks a turn through generation.
type TurnState string

const (
	TurnGenerating TurnState = "generating"
	TurnCompleted  TurnState = "completed"
	TurnCancelled  TurnState = "cancelled"
)

// Turn persists one learner message and the character's reply.
type Turn struct {
	ID          string              `json:"id"`
	Input       string              `json:"input"`
	Output      string              `json:"output,omitempty"`
	Emotion     emotion.Label       `json:"emotion,omitempty"`
	Intensity   float64             `json:"intensity,omitempty"`
	IsError     bool                `json:"isError,omitempty"`
	Fallback    bool                `json:"fallback,omitempty"`
	State       TurnState           `json:"state"`
	Provider    string              `json:"provider,omitempty"`
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt time.Time           `json:"completedAt"`
	LanguageMix *language.MixRecord `json:"languageMix,omitempty"`
}
