// Package store persists sessions together with their emotion and animation
// records.
package store

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("record not found")

// Record groups everything kept for one conversation.
type Record struct {
	Session   *chat.Session
	Emotion   avatar.EmotionState
	Animation avatar.AnimationState
}

// Store is safe for concurrent use across sessions.
type Store interface {
	LoadSession(ctx context.Context, key chat.Key) (*chat.Session, error)
	SaveSession(ctx context.Context, session *chat.Session) error
	LoadEmotion(ctx context.Context, key chat.Key) (avatar.EmotionState, error)
	SaveEmotion(ctx context.Context, key chat.Key, state avatar.EmotionState) error
	LoadAnimation(ctx context.Context, key chat.Key) (avatar.AnimationState, error)
	SaveAnimation(ctx context.Context, key chat.Key, state avatar.AnimationState) error
	// Save writes the three records of one conversation together.
	Save(ctx context.Context, rec Record) error
	Close() error
}
