package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/analysis/langmix"
	"github.com/zhouzirui/z-tutor/backend/internal/event"
	"github.com/zhouzirui/z-tutor/backend/internal/metrics"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/model/language"
	"github.com/zhouzirui/z-tutor/backend/internal/service/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/service/generation"
	"github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
	"github.com/zhouzirui/z-tutor/backend/internal/service/voice"
)

func (o *Orchestrator) runTurn(rt *runtime, t *turn, prev *turn) {
	defer rt.wg.Done()
	defer close(t.done)
	defer t.cancel()

	// 被取消的轮次也要等前一轮结束，done 关闭即表示更早的轮次都已收尾。
	if prev != nil {
		<-prev.done
	}
	if t.ctx.Err() != nil {
		o.finishCancelled(rt, t)
		return
	}

	logger := log.With().Str("session", rt.id()).Str("turn", t.id).Logger()
	_ = o.publish(t.ctx, rt, t.id, event.CharacterThinking, event.ThinkingPayload{Thinking: true})

	rt.mu.Lock()
	p := rt.persona
	lang := rt.session.Language
	built := o.opts.Builder.Build(prompt.Input{
		Persona:  &p,
		Language: lang,
		Emotion:  rt.emotion.Clone(),
		History:  rt.session.CompletedTurns(),
		Notes:    append([]string(nil), rt.session.LearningNotes...),
		Message:  t.input,
	})
	rt.mu.Unlock()

	res, err := o.opts.Generator.Stream(t.ctx, generation.Request{
		Prompt:       built,
		FallbackLine: p.Fallback(),
		ApologyLine:  p.Apology(),
	}, func(chunk string) error {
		return o.publish(t.ctx, rt, t.id, event.CharacterStream, event.StreamPayload{Text: chunk})
	})
	if err != nil {
		if t.ctx.Err() == nil {
			logger.Warn().Err(err).Msg("reply delivery failed")
		}
		o.finishCancelled(rt, t)
		return
	}
	if !t.commit() {
		o.finishCancelled(rt, t)
		return
	}

	_ = o.publish(t.ctx, rt, t.id, event.CharacterStream, event.StreamPayload{IsComplete: true})

	mood := emotion.ClassifyTurn(t.input, res.Text)

	// 语音合成与语言分析并行，但 voice_audio 必须排在本轮 character_response 之后。
	gate := make(chan struct{})
	if o.opts.Voice != nil && o.opts.Voice.Enabled() {
		rt.mu.Lock()
		req := o.voiceRequest(rt, t.id, res.Text, string(mood.Label))
		req.Intensity = mood.Intensity
		rt.wg.Add(1)
		rt.mu.Unlock()
		go func() {
			defer rt.wg.Done()
			o.speak(rt, t.id, req, gate)
		}()
	}
	defer close(gate)

	var (
		replyMix, inputMix language.MixRecord
		g                  errgroup.Group
	)
	g.Go(func() error {
		replyMix = langmix.Analyze(res.Text, lang)
		return nil
	})
	g.Go(func() error {
		inputMix = langmix.Analyze(t.input, lang)
		return nil
	})
	_ = g.Wait()

	now := o.now()
	rt.mu.Lock()
	es, as, cue := o.opts.Machine.Apply(rt.emotion, rt.anim, avatar.Target{
		Label:            mood.Label,
		Intensity:        mood.Intensity,
		GestureFrequency: p.GestureFrequency,
	}, now)
	rt.emotion, rt.anim = es, as

	cfg := o.opts.Session
	rt.session.AppendTurn(chat.Turn{
		ID:          t.id,
		Input:       t.input,
		Output:      res.Text,
		Emotion:     es.Label,
		Intensity:   es.Intensity,
		IsError:     res.IsError,
		Fallback:    res.Fallback,
		State:       chat.TurnCompleted,
		Provider:    res.Provider,
		StartedAt:   t.accepted,
		CompletedAt: now,
		LanguageMix: &replyMix,
	}, cfg.HistoryTokens, cfg.MaxHistoryTurns, prompt.TurnCost)
	for _, note := range langmix.Notes(inputMix) {
		rt.session.AddNote(note, cfg.MaxNotes)
	}
	if rt.current == t {
		rt.session.LockState = chat.LockIdle
	}
	rt.mu.Unlock()
	o.persist(rt)

	_ = o.publish(t.ctx, rt, t.id, event.CharacterResponse, event.ResponsePayload{
		Text:        res.Text,
		Emotion:     string(es.Label),
		Intensity:   es.Intensity,
		IsError:     res.IsError,
		Fallback:    res.Fallback,
		LanguageMix: &replyMix,
	})
	if res.IsError {
		_ = o.publish(t.ctx, rt, t.id, event.Error, event.ErrorPayload{
			Message: "the character could not produce a reply",
			Type:    event.ErrTypeGeneration,
		})
	}
	_ = o.publish(t.ctx, rt, t.id, event.VRMAnimation, event.AnimationPayload{
		Emotion:     string(cue.Emotion),
		Animation:   cue.Animation,
		Duration:    cue.Duration.Seconds(),
		Blendshapes: cue.Blendshapes,
	})

	latency := now.Sub(t.accepted)
	slow := cfg.SlowResponse > 0 && latency > cfg.SlowResponse
	metrics.TurnLatency.Observe(latency.Seconds())
	metrics.TurnsTotal.WithLabelValues(outcome(res)).Inc()
	o.advise(rt, t.id, event.PerformanceMetrics, event.MetricsPayload{
		ResponseTime:   latency.Milliseconds(),
		IsSlowResponse: slow,
		Timestamp:      now.UnixMilli(),
	})
	if slow {
		o.advise(rt, t.id, event.StreamWarning, event.WarningPayload{
			Message:  "the reply took longer than usual",
			Duration: latency.Milliseconds(),
		})
	}

	logger.Info().
		Str("provider", res.Provider).
		Bool("fallback", res.Fallback).
		Bool("is_error", res.IsError).
		Dur("latency", latency).
		Msg("turn finalized")
}

// finishCancelled records a superseded turn with empty output. Nothing is published.
func (o *Orchestrator) finishCancelled(rt *runtime, t *turn) {
	t.tryCancel()
	now := o.now()
	rt.mu.Lock()
	rt.session.AppendTurn(chat.Turn{
		ID:          t.id,
		Input:       t.input,
		State:       chat.TurnCancelled,
		StartedAt:   t.accepted,
		CompletedAt: now,
	}, o.opts.Session.HistoryTokens, o.opts.Session.MaxHistoryTurns, prompt.TurnCost)
	if rt.current == t {
		rt.session.LockState = chat.LockIdle
	}
	rt.mu.Unlock()
	o.persist(rt)

	metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
	log.Debug().Str("session", rt.id()).Str("turn", t.id).Msg("turn cancelled")
}

// voiceRequest must be called with rt.mu held.
func (o *Orchestrator) voiceRequest(rt *runtime, turnID, text, label string) voice.Request {
	mood, ok := emotion.Parse(label)
	intensity := 0.5
	if !ok {
		res := emotion.Classify(text)
		mood, intensity = res.Label, res.Intensity
	}
	return voice.Request{
		VoiceID:   rt.persona.VoiceID,
		Text:      text,
		Emotion:   mood,
		Intensity: intensity,
		Language:  rt.session.Language,
		SessionID: rt.id(),
		TurnID:    turnID,
	}
}

// speak runs on the session context so a later turn never cancels it. When
// gate is non-nil the event waits until the turn's response has been sent.
func (o *Orchestrator) speak(rt *runtime, turnID string, req voice.Request, gate <-chan struct{}) {
	res, err := o.opts.Voice.Synthesize(rt.ctx, req)
	if gate != nil {
		select {
		case <-gate:
		case <-rt.ctx.Done():
			return
		}
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("session", rt.id()).Str("turn", turnID).Msg("voice synthesis skipped")
		}
		return
	}
	_ = o.publish(rt.ctx, rt, turnID, event.VoiceAudio, event.VoicePayload{
		AudioURL: res.AudioURL,
		Text:     res.Text,
		Emotion:  string(res.Emotion),
		Duration: float64(res.Duration) / float64(time.Second),
		Visemes:  res.Visemes,
	})
}

func outcome(res generation.Result) string {
	switch {
	case res.IsError:
		return "error"
	case res.Fallback:
		return "fallback"
	default:
		return "ok"
	}
}
