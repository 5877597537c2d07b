// Package voice turns final reply text into stored audio plus an approximate
// lip-sync timeline.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/metrics"
	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/z-tutor/backend/internal/service/speech"
)

// ErrDisabled is returned when no synthesizer is configured.
var ErrDisabled = errors.New("voice synthesis disabled")

// Synthesizer produces audio for text.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Request is one synthesis.
type Request struct {
	VoiceID   string
	Text      string
	Emotion   emotion.Label
	Intensity float64
	Language  string
	SessionID string
	TurnID    string
}

// Result is what voice_audio carries.
type Result struct {
	AudioURL string
	Text     string
	Emotion  emotion.Label
	Duration time.Duration
	Visemes  []avatar.Viseme
}

// Coordinator 负责调用 TTS、保存音频并生成口型时间线。
type Coordinator struct {
	synth Synthesizer
	store AudioStore
	cfg   config.VoiceConfig
}

// NewCoordinator creates a coordinator. A nil synth disables synthesis.
func NewCoordinator(synth Synthesizer, store AudioStore, cfg config.VoiceConfig) *Coordinator {
	return &Coordinator{synth: synth, store: store, cfg: cfg}
}

// Enabled reports whether synthesis can run.
func (c *Coordinator) Enabled() bool {
	return c != nil && c.synth != nil && c.store != nil
}

// Synthesize runs TTS for req. Failures are logged and counted; callers only
// need to skip the event.
func (c *Coordinator) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("voice: empty text")
	}

	ttsReq := &speech.TTSRequest{
		SessionID: req.SessionID,
		Text:      text,
		Voice:     speechsvc.NormalizeVoiceAlias(req.VoiceID),
		Format:    "mp3",
		Language:  ttsLanguage(req.Language),
	}
	ttsReq.EnableEmotion, ttsReq.Emotion, ttsReq.EmotionScale = speechsvc.EmotionParameters(ttsReq.Voice, req.Emotion, req.Intensity)

	resp, err := c.synth.Synthesize(ctx, ttsReq)
	if err != nil {
		metrics.SynthesisTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("session", req.SessionID).Str("turn", req.TurnID).Msg("speech synthesis failed")
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	url, err := c.store.Save(ctx, format, resp.AudioData)
	if err != nil {
		metrics.SynthesisTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("session", req.SessionID).Msg("failed to store synthesized audio")
		return nil, fmt.Errorf("store audio: %w", err)
	}

	duration := EstimateDuration(len(resp.AudioData), c.cfg.BitrateKbps)
	if resp.Duration > 0 {
		duration = time.Duration(resp.Duration) * time.Millisecond
	}

	metrics.SynthesisTotal.WithLabelValues("ok").Inc()
	return &Result{
		AudioURL: url,
		Text:     text,
		Emotion:  req.Emotion,
		Duration: duration,
		Visemes:  Timeline(duration, c.cfg.VisemeWindow),
	}, nil
}

// ttsLanguage passes region-qualified tags through; bare tags fall back to
// the configured synthesis language.
func ttsLanguage(tag string) string {
	if strings.ContainsAny(tag, "-_") {
		return tag
	}
	return ""
}
