package avatar

import (
	"fmt"
	"time"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
)

// Expression is a VRM blendshape preset name.
type Expression string

const (
	ExprNeutral    Expression = "neutral"
	ExprHappy      Expression = "happy"
	ExprAngry      Expression = "angry"
	ExprSad        Expression = "sad"
	ExprRelaxed    Expression = "relaxed"
	ExprSurprised  Expression = "surprised"
	ExprAa         Expression = "aa"
	ExprIh         Expression = "ih"
	ExprOu         Expression = "ou"
	ExprEe         Expression = "ee"
	ExprOh         Expression = "oh"
	ExprBlink      Expression = "blink"
	ExprBlinkLeft  Expression = "blinkLeft"
	ExprBlinkRight Expression = "blinkRight"
	ExprLookUp     Expression = "lookUp"
	ExprLookDown   Expression = "lookDown"
	ExprLookLeft   Expression = "lookLeft"
	ExprLookRight  Expression = "lookRight"
)

// Expressions is the closed set of keys a Weights map may carry.
var Expressions = []Expression{
	ExprNeutral, ExprHappy, ExprAngry, ExprSad, ExprRelaxed, ExprSurprised,
	ExprAa, ExprIh, ExprOu, ExprEe, ExprOh,
	ExprBlink, ExprBlinkLeft, ExprBlinkRight,
	ExprLookUp, ExprLookDown, ExprLookLeft, ExprLookRight,
}

var knownExpressions = func() map[Expression]struct{} {
	m := make(map[Expression]struct{}, len(Expressions))
	for _, e := range Expressions {
		m[e] = struct{}{}
	}
	return m
}()

// ParseExpression validates an expression name received from outside.
func ParseExpression(raw string) (Expression, bool) {
	e := Expression(raw)
	_, ok := knownExpressions[e]
	return e, ok
}

// Weights maps expressions to blend weights in [0,1].
type Weights map[Expression]float64

// Set clamps the weight into range. Unknown keys are ignored.
func (w Weights) Set(e Expression, v float64) {
	if _, ok := knownExpressions[e]; !ok {
		return
	}
	w[e] = clamp01(v)
}

// Validate rejects unknown keys and out-of-range weights.
func (w Weights) Validate() error {
	for e, v := range w {
		if _, ok := knownExpressions[e]; !ok {
			return fmt.Errorf("unknown expression %q", e)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("expression %q weight %v out of range", e, v)
		}
	}
	return nil
}

// Clone copies the map.
func (w Weights) Clone() Weights {
	cp := make(Weights, len(w))
	for k, v := range w {
		cp[k] = v
	}
	return cp
}

// MaxEmotionHistory bounds EmotionState.History.
const MaxEmotionHistory = 20

// EmotionEntry is one transition in the emotion log.
type EmotionEntry struct {
	Label     emotion.Label `json:"label"`
	Intensity float64       `json:"intensity"`
	At        time.Time     `json:"at"`
}

// EmotionState is the character's current emotional state for a session.
type EmotionState struct {
	Label           emotion.Label  `json:"label"`
	Intensity       float64        `json:"intensity"`
	LastTransition  time.Time      `json:"lastTransition"`
	LastDecayAt     time.Time      `json:"lastDecayAt"`
	DecayRate       float64        `json:"decayRate"`
	TransitionSpeed float64        `json:"transitionSpeed"`
	AutoDecay       bool           `json:"autoDecay"`
	History         []EmotionEntry `json:"history,omitempty"`
}

// NewEmotionState starts a neutral state.
func NewEmotionState(decayRate, transitionSpeed float64, autoDecay bool, now time.Time) EmotionState {
	return EmotionState{
		Label:           emotion.Neutral,
		LastTransition:  now,
		DecayRate:       decayRate,
		TransitionSpeed: transitionSpeed,
		AutoDecay:       autoDecay,
	}
}

// Record appends to the bounded history log.
func (s *EmotionState) Record(entry EmotionEntry) {
	s.History = append(s.History, entry)
	if len(s.History) > MaxEmotionHistory {
		s.History = append([]EmotionEntry(nil), s.History[len(s.History)-MaxEmotionHistory:]...)
	}
}

// Clone deep-copies the history slice.
func (s EmotionState) Clone() EmotionState {
	s.History = append([]EmotionEntry(nil), s.History...)
	return s
}

// AnimationState is the avatar's current animation state for a session.
type AnimationState struct {
	Weights          Weights    `json:"weights"`
	ActiveAnimations []string   `json:"activeAnimations,omitempty"`
	Gesture          string     `json:"gesture,omitempty"`
	GestureAt        time.Time  `json:"gestureAt,omitempty"`
	GestureUntil     time.Time  `json:"gestureUntil,omitempty"`
	Look             Expression `json:"look,omitempty"`
	IdleEnabled      bool       `json:"idleEnabled"`
	LastBlinkAt      time.Time  `json:"lastBlinkAt"`
	LastTurnAt       time.Time  `json:"lastTurnAt"`
}

// NewAnimationState returns a resting pose with idle animation enabled.
func NewAnimationState(now time.Time) AnimationState {
	return AnimationState{
		Weights:     Weights{ExprNeutral: 1},
		IdleEnabled: true,
		LastBlinkAt: now,
		LastTurnAt:  now,
	}
}

// GestureActive reports whether a gesture is still playing at now.
func (a AnimationState) GestureActive(now time.Time) bool {
	return a.Gesture != "" && now.Before(a.GestureUntil)
}

// Clone deep-copies maps and slices.
func (a AnimationState) Clone() AnimationState {
	a.Weights = a.Weights.Clone()
	a.ActiveAnimations = append([]string(nil), a.ActiveAnimations...)
	return a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Viseme is one mouth-shape window of a lip-sync timeline.
type Viseme struct {
	Symbol   string  `json:"viseme"`
	Time     float64 `json:"time"`     // milliseconds from audio start
	Duration float64 `json:"duration"` // milliseconds
	Weight   float64 `json:"weight"`
}
