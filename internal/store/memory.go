package store

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
)

// MemoryStore keeps records in process memory, suitable for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*chat.Session
	emotions   map[string]avatar.EmotionState
	animations map[string]avatar.AnimationState
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*chat.Session),
		emotions:   make(map[string]avatar.EmotionState),
		animations: make(map[string]avatar.AnimationState),
	}
}

// LoadSession returns a copy of the stored session.
func (s *MemoryStore) LoadSession(_ context.Context, key chat.Key) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key.ID()]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// SaveSession stores a copy of session.
func (s *MemoryStore) SaveSession(_ context.Context, session *chat.Session) error {
	if session == nil {
		return errors.New("nil session")
	}
	s.mu.Lock()
	s.sessions[session.Key().ID()] = session.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadEmotion(_ context.Context, key chat.Key) (avatar.EmotionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.emotions[key.ID()]
	if !ok {
		return avatar.EmotionState{}, ErrNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryStore) SaveEmotion(_ context.Context, key chat.Key, state avatar.EmotionState) error {
	s.mu.Lock()
	s.emotions[key.ID()] = state.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadAnimation(_ context.Context, key chat.Key) (avatar.AnimationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.animations[key.ID()]
	if !ok {
		return avatar.AnimationState{}, ErrNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryStore) SaveAnimation(_ context.Context, key chat.Key, state avatar.AnimationState) error {
	s.mu.Lock()
	s.animations[key.ID()] = state.Clone()
	s.mu.Unlock()
	return nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.Session == nil {
		return errors.New("nil session")
	}
	id := rec.Session.Key().ID()
	s.mu.Lock()
	s.sessions[id] = rec.Session.Clone()
	s.emotions[id] = rec.Emotion.Clone()
	s.animations[id] = rec.Animation.Clone()
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
