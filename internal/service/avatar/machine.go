// Package avatar drives the per-session emotion and animation state of the
// 3D character.
package avatar

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/config"
	model "github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
)

const (
	defaultCueDuration = 2 * time.Second
	gestureDuration    = 2500 * time.Millisecond
	blinkWeight        = 1.0
)

// Cue is the animation instruction sent with vrm_animation.
type Cue struct {
	Emotion     emotion.Label
	Animation   string
	Duration    time.Duration
	Blendshapes model.Weights
}

// Target is what a finished turn asks the avatar to show.
type Target struct {
	Label     emotion.Label
	Intensity float64
	// GestureFrequency comes from the character record.
	GestureFrequency float64
}

// 每种情绪对应的 VRM 表情配比，乘以强度后作为目标权重。
var expressionMix = map[emotion.Label]map[model.Expression]float64{
	emotion.Neutral:     {model.ExprNeutral: 1},
	emotion.Happy:       {model.ExprHappy: 1},
	emotion.Excited:     {model.ExprHappy: 0.8, model.ExprSurprised: 0.4},
	emotion.Thoughtful:  {model.ExprRelaxed: 0.6, model.ExprLookUp: 0.3},
	emotion.Encouraging: {model.ExprHappy: 0.6, model.ExprRelaxed: 0.5},
	emotion.Confused:    {model.ExprSurprised: 0.5, model.ExprSad: 0.2},
	emotion.Sad:         {model.ExprSad: 1},
	emotion.Surprised:   {model.ExprSurprised: 1},
	emotion.Angry:       {model.ExprAngry: 1},
}

var gestures = map[emotion.Label][]string{
	emotion.Neutral:     {"nod"},
	emotion.Happy:       {"wave", "clap", "nod"},
	emotion.Excited:     {"jump", "clap", "fist_pump"},
	emotion.Thoughtful:  {"chin_stroke", "head_tilt"},
	emotion.Encouraging: {"thumbs_up", "nod", "open_arms"},
	emotion.Confused:    {"head_tilt", "shrug"},
	emotion.Sad:         {"look_down"},
	emotion.Surprised:   {"step_back", "hands_up"},
	emotion.Angry:       {"cross_arms", "head_shake"},
}

var lookDirections = []model.Expression{model.ExprLookUp, model.ExprLookDown, model.ExprLookLeft, model.ExprLookRight}

// expressionKeys are the weights an emotion blend owns; visemes belong to lip-sync.
var expressionKeys = []model.Expression{
	model.ExprNeutral, model.ExprHappy, model.ExprAngry, model.ExprSad, model.ExprRelaxed, model.ExprSurprised,
	model.ExprLookUp,
}

// Machine applies transitions. It is shared by all sessions and holds no
// session state itself.
type Machine struct {
	cfg config.AnimationConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMachine creates a machine. A nil src seeds a PCG from the clock.
func NewMachine(cfg config.AnimationConfig, src rand.Source) *Machine {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &Machine{cfg: cfg, rng: rand.New(src)}
}

func (m *Machine) float64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *Machine) intN(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.IntN(n)
}

// Apply moves the states toward a new emotion and returns the cue to play.
func (m *Machine) Apply(es model.EmotionState, as model.AnimationState, target Target, now time.Time) (model.EmotionState, model.AnimationState, Cue) {
	es = es.Clone()
	as = as.Clone()

	label := target.Label
	if _, ok := expressionMix[label]; !ok {
		label = emotion.Neutral
	}
	intensity := clamp01(target.Intensity)

	speed := es.TransitionSpeed
	if speed <= 0 {
		speed = m.cfg.TransitionSpeed
	}
	snap := math.Abs(intensity-es.Intensity) > m.cfg.SnapThreshold
	if snap || speed >= 1 {
		es.Intensity = intensity
		speed = 1
	} else {
		es.Intensity += (intensity - es.Intensity) * speed
	}
	es.Label = label
	es.LastTransition = now
	es.LastDecayAt = now
	es.Record(model.EmotionEntry{Label: label, Intensity: es.Intensity, At: now})

	if as.Weights == nil {
		as.Weights = model.Weights{}
	}
	goal := expressionMix[label]
	for _, key := range expressionKeys {
		want := goal[key]
		if key != model.ExprNeutral {
			want *= es.Intensity
		}
		cur := as.Weights[key]
		as.Weights.Set(key, cur+(want-cur)*speed)
	}
	as.LastTurnAt = now

	cue := Cue{
		Emotion:   label,
		Animation: "expression_" + string(label),
		Duration:  defaultCueDuration,
	}
	if !as.GestureActive(now) && target.GestureFrequency > 0 && m.float64() < target.GestureFrequency {
		options := gestures[label]
		as.Gesture = options[m.intN(len(options))]
		as.GestureAt = now
		as.GestureUntil = now.Add(gestureDuration)
		cue.Animation = as.Gesture
		cue.Duration = gestureDuration
	}

	as.ActiveAnimations = []string{"expression_" + string(label)}
	if as.GestureActive(now) {
		as.ActiveAnimations = append(as.ActiveAnimations, as.Gesture)
	}
	cue.Blendshapes = as.Weights.Clone()
	return es, as, cue
}

// IdleTick animates the avatar between turns: blinking, small head movement,
// and drifting back to a relaxed pose. changed is false when the avatar is
// busy or idle animation is off.
func (m *Machine) IdleTick(as model.AnimationState, now time.Time) (model.AnimationState, bool) {
	if !as.IdleEnabled || now.Sub(as.LastTurnAt) < m.cfg.IdleWindow || as.GestureActive(now) {
		return as, false
	}
	as = as.Clone()
	if as.Weights == nil {
		as.Weights = model.Weights{}
	}

	if now.Sub(as.LastBlinkAt) >= m.cfg.BlinkInterval {
		as.Weights.Set(model.ExprBlink, blinkWeight)
		as.LastBlinkAt = now
	} else {
		as.Weights.Set(model.ExprBlink, 0)
	}

	for _, dir := range lookDirections {
		as.Weights.Set(dir, 0)
	}
	look := lookDirections[m.intN(len(lookDirections))]
	as.Weights.Set(look, 0.1+0.2*m.float64())
	as.Look = look

	// 空闲时慢慢回到放松的中性姿态
	idle := map[model.Expression]float64{model.ExprNeutral: 1, model.ExprRelaxed: 0.2}
	speed := m.cfg.TransitionSpeed / 2
	for _, key := range expressionKeys {
		if key == model.ExprLookUp {
			continue
		}
		cur := as.Weights[key]
		as.Weights.Set(key, cur+(idle[key]-cur)*speed)
	}
	as.ActiveAnimations = []string{"idle"}
	return as, true
}

// Decay lowers the intensity linearly with the time since the last update.
// It never raises it; at zero the label returns to neutral.
func (m *Machine) Decay(es model.EmotionState, now time.Time) model.EmotionState {
	if !es.AutoDecay || es.Label == emotion.Neutral && es.Intensity == 0 {
		return es
	}
	since := es.LastDecayAt
	if es.LastTransition.After(since) {
		since = es.LastTransition
	}
	elapsed := now.Sub(since).Seconds()
	if elapsed <= 0 {
		return es
	}

	es = es.Clone()
	es.Intensity = clamp01(es.Intensity - es.DecayRate*elapsed)
	es.LastDecayAt = now
	if es.Intensity == 0 && es.Label != emotion.Neutral {
		es.Label = emotion.Neutral
		es.LastTransition = now
		es.Record(model.EmotionEntry{Label: emotion.Neutral, At: now})
	}
	return es
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
