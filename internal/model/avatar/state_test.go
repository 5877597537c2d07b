package avatar

import (
	"testing"
	"time"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
)

func TestWeightsSetClampsAndIgnoresUnknown(t *testing.T) {
	w := Weights{}
	w.Set(ExprHappy, 1.7)
	w.Set(ExprSad, -0.2)
	w.Set(Expression("wink"), 0.5)

	if w[ExprHappy] != 1 || w[ExprSad] != 0 {
		t.Fatalf("expected clamped weights, got %v", w)
	}
	if _, ok := w[Expression("wink")]; ok {
		t.Fatalf("unknown expression should not be stored")
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestWeightsValidateRejects(t *testing.T) {
	if err := (Weights{Expression("smirk"): 0.2}).Validate(); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if err := (Weights{ExprAa: 1.2}).Validate(); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestParseExpression(t *testing.T) {
	if _, ok := ParseExpression("blinkLeft"); !ok {
		t.Fatalf("blinkLeft should be a known expression")
	}
	if _, ok := ParseExpression("Blink"); ok {
		t.Fatalf("expression names are case-sensitive")
	}
}

func TestEmotionHistoryIsBounded(t *testing.T) {
	state := NewEmotionState(0.1, 0.3, true, time.Now())
	for i := 0; i < MaxEmotionHistory+5; i++ {
		state.Record(EmotionEntry{Label: emotion.Happy, Intensity: float64(i) / 100})
	}
	if len(state.History) != MaxEmotionHistory {
		t.Fatalf("expected %d entries, got %d", MaxEmotionHistory, len(state.History))
	}
	if state.History[0].Intensity != 0.05 {
		t.Fatalf("expected oldest entries dropped, first is %v", state.History[0].Intensity)
	}
}

func TestAnimationCloneIsDeep(t *testing.T) {
	state := NewAnimationState(time.Now())
	cp := state.Clone()
	cp.Weights[ExprHappy] = 1
	if _, ok := state.Weights[ExprHappy]; ok {
		t.Fatalf("clone shares weights map")
	}
}
