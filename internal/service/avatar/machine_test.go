package avatar

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/config"
	model "github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testMachine() *Machine {
	return NewMachine(config.AnimationConfig{
		TransitionSpeed: 0.35,
		SnapThreshold:   0.5,
		DecayRate:       0.1,
		AutoDecay:       true,
		IdleWindow:      8 * time.Second,
		BlinkInterval:   4 * time.Second,
	}, rand.NewPCG(1, 2))
}

func states() (model.EmotionState, model.AnimationState) {
	return model.NewEmotionState(0.1, 0.35, true, t0), model.NewAnimationState(t0)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestApplySnapsOnLargeChange(t *testing.T) {
	m := testMachine()
	es, as := states()

	es, as, cue := m.Apply(es, as, Target{Label: emotion.Happy, Intensity: 0.8}, t0.Add(time.Second))
	if es.Label != emotion.Happy || !near(es.Intensity, 0.8) {
		t.Fatalf("expected snap to happy 0.8, got %s %.2f", es.Label, es.Intensity)
	}
	if !near(as.Weights[model.ExprHappy], 0.8) || as.Weights[model.ExprNeutral] != 0 {
		t.Fatalf("unexpected weights %v", as.Weights)
	}
	if cue.Emotion != emotion.Happy || cue.Animation != "expression_happy" || cue.Duration != defaultCueDuration {
		t.Fatalf("unexpected cue %+v", cue)
	}
	if err := cue.Blendshapes.Validate(); err != nil {
		t.Fatalf("cue weights invalid: %v", err)
	}
	if len(es.History) != 1 {
		t.Fatalf("transition should be logged, got %d entries", len(es.History))
	}
}

func TestApplyBlendsSmallChange(t *testing.T) {
	m := testMachine()
	es, as := states()
	es.Label, es.Intensity = emotion.Happy, 0.6

	es, _, _ = m.Apply(es, as, Target{Label: emotion.Happy, Intensity: 0.8}, t0)
	if !near(es.Intensity, 0.6+0.2*0.35) {
		t.Fatalf("expected blended intensity, got %.4f", es.Intensity)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	m := testMachine()
	es, as := states()
	m.Apply(es, as, Target{Label: emotion.Sad, Intensity: 0.9}, t0)
	if as.Weights[model.ExprSad] != 0 || len(es.History) != 0 {
		t.Fatalf("inputs must not be modified")
	}
}

func TestApplyGestureAtMostOne(t *testing.T) {
	m := testMachine()
	es, as := states()

	es, as, cue := m.Apply(es, as, Target{Label: emotion.Excited, Intensity: 0.9, GestureFrequency: 1}, t0)
	if !slices.Contains(gestures[emotion.Excited], cue.Animation) {
		t.Fatalf("expected an excited gesture, got %q", cue.Animation)
	}
	first := as.Gesture
	if !as.GestureActive(t0) || cue.Duration != gestureDuration {
		t.Fatalf("gesture should be active")
	}

	_, as, cue = m.Apply(es, as, Target{Label: emotion.Happy, Intensity: 0.9, GestureFrequency: 1}, t0.Add(time.Second))
	if as.Gesture != first || cue.Animation != "expression_happy" {
		t.Fatalf("second gesture should be dropped, got %q / %q", as.Gesture, cue.Animation)
	}

	_, _, cue = m.Apply(es, as, Target{Label: emotion.Happy, Intensity: 0.9, GestureFrequency: 1}, t0.Add(10*time.Second))
	if !slices.Contains(gestures[emotion.Happy], cue.Animation) {
		t.Fatalf("gesture should play again after the first ended, got %q", cue.Animation)
	}
}

func TestApplyDeterministicWithSeed(t *testing.T) {
	run := func() string {
		m := testMachine()
		es, as := states()
		_, _, cue := m.Apply(es, as, Target{Label: emotion.Happy, Intensity: 0.5, GestureFrequency: 1}, t0)
		return cue.Animation
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("same seed should pick the same gesture: %q vs %q", a, b)
	}
}

func TestIdleTick(t *testing.T) {
	m := testMachine()
	_, as := states()

	if _, changed := m.IdleTick(as, t0.Add(2*time.Second)); changed {
		t.Fatalf("idle animation must wait for the idle window")
	}

	next, changed := m.IdleTick(as, t0.Add(9*time.Second))
	if !changed {
		t.Fatalf("expected idle animation after the window")
	}
	if next.Weights[model.ExprBlink] != blinkWeight || !next.LastBlinkAt.Equal(t0.Add(9*time.Second)) {
		t.Fatalf("expected a blink, got %v", next.Weights)
	}
	if next.Look == "" || next.Weights[next.Look] <= 0 {
		t.Fatalf("expected a small head movement, got %v", next.Weights)
	}
	if err := next.Weights.Validate(); err != nil {
		t.Fatalf("invalid weights: %v", err)
	}

	after, _ := m.IdleTick(next, t0.Add(10*time.Second))
	if after.Weights[model.ExprBlink] != 0 {
		t.Fatalf("blink should close before the next interval")
	}

	as.IdleEnabled = false
	if _, changed := m.IdleTick(as, t0.Add(time.Minute)); changed {
		t.Fatalf("disabled idle must not animate")
	}
}

func TestDecay(t *testing.T) {
	m := testMachine()
	es, _ := states()
	es.Label, es.Intensity = emotion.Happy, 0.5

	es = m.Decay(es, t0.Add(2*time.Second))
	if !near(es.Intensity, 0.3) || es.Label != emotion.Happy {
		t.Fatalf("expected 0.3 happy, got %.3f %s", es.Intensity, es.Label)
	}

	prev := es.Intensity
	es = m.Decay(es, t0.Add(2*time.Second))
	if es.Intensity > prev {
		t.Fatalf("decay must never increase intensity")
	}

	es = m.Decay(es, t0.Add(30*time.Second))
	if es.Intensity != 0 || es.Label != emotion.Neutral {
		t.Fatalf("expected neutral after full decay, got %.3f %s", es.Intensity, es.Label)
	}

	manual, _ := states()
	manual.AutoDecay = false
	manual.Label, manual.Intensity = emotion.Sad, 0.7
	if got := m.Decay(manual, t0.Add(time.Hour)); got.Intensity != 0.7 {
		t.Fatalf("decay disabled should keep intensity, got %.2f", got.Intensity)
	}
}
