package chat

import (
	"testing"
	"time"
)

func TestKeyRoundTrip(t *testing.T) {
	key := Key{UserID: "learner-1", CharacterID: "sofia"}
	parsed, ok := ParseKey(key.ID())
	if !ok || parsed != key {
		t.Fatalf("expected %+v, got %+v ok=%v", key, parsed, ok)
	}
	if _, ok := ParseKey("missing-separator"); ok {
		t.Fatalf("expected malformed id to be rejected")
	}
}

func TestAppendTurnTrimsOldestByBudget(t *testing.T) {
	now := time.Unix(1700000000, 0)
	session := NewSession(Key{UserID: "u", CharacterID: "c"}, "en", now)
	cost := func(Turn) int { return 10 }

	for i := 0; i < 5; i++ {
		session.AppendTurn(Turn{ID: string(rune('a' + i)), State: TurnCompleted, CompletedAt: now}, 30, 0, cost)
	}

	if len(session.History) != 3 {
		t.Fatalf("expected 3 turns within budget, got %d", len(session.History))
	}
	if session.History[0].ID != "c" || session.History[2].ID != "e" {
		t.Fatalf("expected oldest turns trimmed, got %+v", session.History)
	}
}

func TestAppendTurnKeepsNewestEvenOverBudget(t *testing.T) {
	session := NewSession(Key{UserID: "u", CharacterID: "c"}, "en", time.Now())
	session.AppendTurn(Turn{ID: "big", State: TurnCompleted}, 5, 0, func(Turn) int { return 50 })
	if len(session.History) != 1 {
		t.Fatalf("expected newest turn kept, got %d", len(session.History))
	}
}

func TestAppendTurnRespectsEntryCap(t *testing.T) {
	session := NewSession(Key{UserID: "u", CharacterID: "c"}, "en", time.Now())
	for i := 0; i < 4; i++ {
		session.AppendTurn(Turn{ID: string(rune('a' + i)), State: TurnCancelled}, 0, 2, nil)
	}
	if len(session.History) != 2 || session.History[0].ID != "c" {
		t.Fatalf("unexpected history %+v", session.History)
	}
}

func TestCompletedTurnsSkipsCancelled(t *testing.T) {
	session := NewSession(Key{UserID: "u", CharacterID: "c"}, "en", time.Now())
	session.History = []Turn{{ID: "1", State: TurnCompleted}, {ID: "2", State: TurnCancelled}, {ID: "3", State: TurnCompleted}}
	got := session.CompletedTurns()
	if len(got) != 2 || got[1].ID != "3" {
		t.Fatalf("unexpected completed turns %+v", got)
	}
}

func TestAddNoteDeduplicatesAndBounds(t *testing.T) {
	session := NewSession(Key{UserID: "u", CharacterID: "c"}, "en", time.Now())
	session.AddNote("a", 2)
	session.AddNote("a", 2)
	session.AddNote("b", 2)
	session.AddNote("c", 2)
	if len(session.LearningNotes) != 2 || session.LearningNotes[0] != "b" {
		t.Fatalf("unexpected notes %v", session.LearningNotes)
	}
}

func TestCloneIsDeep(t *testing.T) {
	session := NewSession(Key{UserID: "u", CharacterID: "c"}, "en", time.Now())
	session.History = []Turn{{ID: "1"}}
	cp := session.Clone()
	cp.History[0].ID = "changed"
	if session.History[0].ID != "1" {
		t.Fatalf("clone shares history backing array")
	}
}
