package chat

import (
	"strings"
	"time"
)

// LockState reports whether a session currently owns a generating turn.
type LockState string

const (
	LockIdle       LockState = "idle"
	LockGenerating LockState = "generating"
)

// Key identifies a conversation: one learner talking to one character.
type Key struct {
	UserID      string `json:"userId"`
	CharacterID string `json:"characterId"`
}

// ID renders the stable session identifier.
func (k Key) ID() string {
	return k.UserID + ":" + k.CharacterID
}

// ParseKey splits a session identifier produced by Key.ID.
func ParseKey(id string) (Key, bool) {
	user, character, ok := strings.Cut(id, ":")
	if !ok || user == "" || character == "" {
		return Key{}, false
	}
	return Key{UserID: user, CharacterID: character}, true
}

// Session captures the durable conversation between a learner and a character.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	CharacterID   string    `json:"characterId"`
	Language      string    `json:"language"`
	Active        bool      `json:"active"`
	LockState     LockState `json:"lockState"`
	History       []Turn    `json:"history"`
	LearningNotes []string  `json:"learningNotes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewSession creates an idle session record.
func NewSession(key Key, language string, now time.Time) *Session {
	return &Session{
		ID:          key.ID(),
		UserID:      key.UserID,
		CharacterID: key.CharacterID,
		Language:    language,
		LockState:   LockIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Key returns the session's composite key.
func (s *Session) Key() Key {
	return Key{UserID: s.UserID, CharacterID: s.CharacterID}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.History = append([]Turn(nil), s.History...)
	cp.LearningNotes = append([]string(nil), s.LearningNotes...)
	return &cp
}

// CompletedTurns filters out cancelled entries.
func (s *Session) CompletedTurns() []Turn {
	out := make([]Turn, 0, len(s.History))
	for _, turn := range s.History {
		if turn.State == TurnCompleted {
			out = append(out, turn)
		}
	}
	return out
}

// AppendTurn records a finalized or cancelled turn and trims the oldest entries
// until the history fits both the token budget and the entry cap.
func (s *Session) AppendTurn(turn Turn, tokenBudget, maxTurns int, cost func(Turn) int) {
	s.History = append(s.History, turn)
	s.UpdatedAt = turn.CompletedAt

	if maxTurns > 0 && len(s.History) > maxTurns {
		s.History = append([]Turn(nil), s.History[len(s.History)-maxTurns:]...)
	}
	if tokenBudget <= 0 || cost == nil {
		return
	}

	total := 0
	for _, t := range s.History {
		total += cost(t)
	}
	drop := 0
	// the newest turn is always kept
	for total > tokenBudget && drop < len(s.History)-1 {
		total -= cost(s.History[drop])
		drop++
	}
	if drop > 0 {
		s.History = append([]Turn(nil), s.History[drop:]...)
	}
}

// AddNote appends a learning note, skipping duplicates and keeping the newest limit notes.
func (s *Session) AddNote(note string, limit int) {
	note = strings.TrimSpace(note)
	if note == "" || limit <= 0 {
		return
	}
	for _, existing := range s.LearningNotes {
		if existing == note {
			return
		}
	}
	s.LearningNotes = append(s.LearningNotes, note)
	if len(s.LearningNotes) > limit {
		s.LearningNotes = append([]string(nil), s.LearningNotes[len(s.LearningNotes)-limit:]...)
	}
}

// Reset clears the conversation but keeps identity and language.
func (s *Session) Reset(now time.Time) {
	s.History = nil
	s.LearningNotes = nil
	s.LockState = LockIdle
	s.UpdatedAt = now
}
