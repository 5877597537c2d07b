// Package orchestrator runs conversation turns: it owns the per-session turn
// lock, drives generation, and fans the finished reply out to emotion,
// animation, language analysis and voice.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/event"
	"github.com/zhouzirui/z-tutor/backend/internal/metrics"
	avatarmodel "github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
	"github.com/zhouzirui/z-tutor/backend/internal/service/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/service/generation"
	"github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
	"github.com/zhouzirui/z-tutor/backend/internal/service/voice"
	"github.com/zhouzirui/z-tutor/backend/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is busy with another reply")
	ErrEmptyMessage    = errors.New("message is empty")
)

const persistTimeout = 5 * time.Second

// Generator streams one reply.
type Generator interface {
	Stream(ctx context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error)
}

// VoiceSynthesizer turns reply text into audio.
type VoiceSynthesizer interface {
	Enabled() bool
	Synthesize(ctx context.Context, req voice.Request) (*voice.Result, error)
}

// Options wires the orchestrator's collaborators. Voice may be nil.
type Options struct {
	Session   config.SessionConfig
	Animation config.AnimationConfig
	Personas  persona.Store
	Store     store.Store
	Builder   *prompt.Builder
	Generator Generator
	Machine   *avatar.Machine
	Voice     VoiceSynthesizer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator 管理所有打开的会话。
type Orchestrator struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*runtime
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts, sessions: make(map[string]*runtime)}
}

func (o *Orchestrator) now() time.Time {
	return o.opts.Now().UTC()
}

func (o *Orchestrator) lookup(sessionID string) (*runtime, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rt, ok := o.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rt, nil
}

// Open loads or creates the session for userID and characterID, binds sink to
// it and announces the character. Opening a session that is already open only
// rebinds the sink. A non-empty language replaces the session language.
func (o *Orchestrator) Open(ctx context.Context, userID, characterID, language string, sink event.Sink) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.Contains(userID, ":") {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	p, ok := o.opts.Personas.FindByID(characterID)
	if !ok {
		return "", fmt.Errorf("%w: %s", persona.ErrUnknownCharacter, characterID)
	}
	key := chat.Key{UserID: userID, CharacterID: p.ID}
	language = strings.TrimSpace(language)

	o.mu.Lock()
	rt, exists := o.sessions[key.ID()]
	if exists {
		rt.mu.Lock()
		rt.sink = sink
		if language != "" {
			rt.session.Language = language
		}
		rt.mu.Unlock()
		o.mu.Unlock()
		log.Info().Str("session", key.ID()).Msg("session rebound to new connection")
		return key.ID(), o.announce(ctx, rt)
	}

	rt = o.load(ctx, key, p)
	rt.sink = sink
	if language != "" {
		rt.session.Language = language
	}
	rt.ctx, rt.cancel = context.WithCancel(context.Background())
	o.sessions[key.ID()] = rt
	o.mu.Unlock()

	metrics.ActiveSessions.Inc()
	o.persist(rt)
	if o.opts.Animation.IdleTick > 0 {
		rt.wg.Add(1)
		go o.idleLoop(rt)
	}
	log.Info().Str("session", key.ID()).Str("persona", p.ID).Msg("session opened")
	return key.ID(), o.announce(ctx, rt)
}

func (o *Orchestrator) load(ctx context.Context, key chat.Key, p persona.Persona) *runtime {
	now := o.now()
	rt := &runtime{key: key, persona: p}

	session, err := o.opts.Store.LoadSession(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("session", key.ID()).Msg("failed to load session, starting fresh")
		}
		session = chat.NewSession(key, p.SpokenLanguage(), now)
	}
	session.Active = true
	session.LockState = chat.LockIdle
	rt.session = session

	rt.emotion, err = o.opts.Store.LoadEmotion(ctx, key)
	if err != nil {
		a := o.opts.Animation
		rt.emotion = avatarmodel.NewEmotionState(a.DecayRate, a.TransitionSpeed, a.AutoDecay, now)
	}
	rt.anim, err = o.opts.Store.LoadAnimation(ctx, key)
	if err != nil {
		rt.anim = avatarmodel.NewAnimationState(now)
	}
	return rt
}

func (o *Orchestrator) announce(ctx context.Context, rt *runtime) error {
	rt.mu.Lock()
	payload := event.SwitchedPayload{
		CharacterID: rt.persona.ID,
		Name:        rt.persona.Name,
		OpeningLine: rt.persona.OpeningLine,
		Language:    rt.session.Language,
	}
	rt.mu.Unlock()
	return o.publish(ctx, rt, "", event.CharacterSwitched, payload)
}

// Close cancels any in-flight turn, stops background work and marks the
// session inactive.
func (o *Orchestrator) Close(sessionID string) error {
	return o.closeIf(sessionID, nil)
}

// closeIf closes the session. With a non-nil sink it does nothing unless sink
// is still bound; the check and the removal share o.mu with Open's rebind.
func (o *Orchestrator) closeIf(sessionID string, sink event.Sink) error {
	o.mu.Lock()
	rt, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return ErrSessionNotFound
	}
	if sink != nil {
		rt.mu.Lock()
		bound := rt.sink == sink
		rt.mu.Unlock()
		if !bound {
			o.mu.Unlock()
			return nil
		}
	}
	delete(o.sessions, sessionID)
	o.mu.Unlock()

	rt.mu.Lock()
	rt.closed = true
	if t := rt.activeTurn(); t != nil {
		t.tryCancel()
	}
	rt.mu.Unlock()

	rt.cancel()
	rt.wg.Wait()

	rt.mu.Lock()
	rt.session.Active = false
	rt.session.LockState = chat.LockIdle
	rt.session.UpdatedAt = o.now()
	rt.mu.Unlock()
	o.persist(rt)

	metrics.ActiveSessions.Dec()
	log.Info().Str("session", sessionID).Msg("session closed")
	return nil
}

// Release closes the session only if sink is still the bound connection. A
// connection that was replaced by a reconnect leaves the session running.
func (o *Orchestrator) Release(sessionID string, sink event.Sink) error {
	if sink == nil {
		return nil
	}
	return o.closeIf(sessionID, sink)
}

// Shutdown closes every open session.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		_ = o.Close(id)
	}
}

// HandleMessage accepts a learner message and starts a turn for it. By
// default a still-streaming turn is cancelled and replaced; with interrupts
// disabled ErrSessionBusy is returned instead.
func (o *Orchestrator) HandleMessage(_ context.Context, sessionID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	rt, err := o.lookup(sessionID)
	if err != nil {
		return "", err
	}

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return "", ErrSessionNotFound
	}
	prev := rt.activeTurn()
	if prev != nil && !o.opts.Session.AllowInterrupt {
		rt.mu.Unlock()
		return "", ErrSessionBusy
	}
	if prev != nil && prev.tryCancel() {
		log.Debug().Str("session", sessionID).Str("turn", prev.id).Msg("turn superseded")
	}
	t := newTurn(rt.ctx, uuid.NewString(), text, o.now())
	rt.current = t
	rt.session.LockState = chat.LockGenerating
	rt.wg.Add(1)
	rt.mu.Unlock()

	go o.runTurn(rt, t, prev)
	return t.id, nil
}

// RequestVoice synthesizes arbitrary text. The voice_audio event is published
// asynchronously; failures publish nothing.
func (o *Orchestrator) RequestVoice(_ context.Context, sessionID, text, label string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	rt, err := o.lookup(sessionID)
	if err != nil {
		return err
	}
	if o.opts.Voice == nil || !o.opts.Voice.Enabled() {
		return voice.ErrDisabled
	}

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return ErrSessionNotFound
	}
	req := o.voiceRequest(rt, "", text, label)
	rt.wg.Add(1)
	rt.mu.Unlock()

	go func() {
		defer rt.wg.Done()
		o.speak(rt, "", req, nil)
	}()
	return nil
}

// ClearConversation cancels any in-flight turn and forgets history, learning
// notes and the current emotion. Closed sessions are cleared in the store.
func (o *Orchestrator) ClearConversation(ctx context.Context, sessionID string) error {
	rt, err := o.lookup(sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return o.clearStored(ctx, sessionID)
	}

	rt.mu.Lock()
	prev := rt.activeTurn()
	if prev != nil {
		prev.tryCancel()
	}
	rt.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	now := o.now()
	a := o.opts.Animation
	rt.mu.Lock()
	rt.session.Reset(now)
	rt.emotion = avatarmodel.NewEmotionState(a.DecayRate, a.TransitionSpeed, a.AutoDecay, now)
	rt.anim = avatarmodel.NewAnimationState(now)
	rt.mu.Unlock()
	o.persist(rt)

	log.Info().Str("session", sessionID).Msg("conversation cleared")
	return o.publish(ctx, rt, "", event.ConversationCleared, event.ClearedPayload{Cleared: true})
}

func (o *Orchestrator) clearStored(ctx context.Context, sessionID string) error {
	rec, err := o.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}
	now := o.now()
	a := o.opts.Animation
	rec.Session.Reset(now)
	rec.Emotion = avatarmodel.NewEmotionState(a.DecayRate, a.TransitionSpeed, a.AutoDecay, now)
	rec.Animation = avatarmodel.NewAnimationState(now)
	if err := o.opts.Store.Save(ctx, rec); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return nil
}

// History returns the conversation history. Closed sessions are read from the store.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	rec, err := o.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Session.History, nil
}

// Snapshot copies the session together with its emotion and animation state.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID string) (store.Record, error) {
	if rt, err := o.lookup(sessionID); err == nil {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return rt.record(), nil
	}

	key, ok := chat.ParseKey(sessionID)
	if !ok {
		return store.Record{}, ErrSessionNotFound
	}
	session, err := o.opts.Store.LoadSession(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return store.Record{}, ErrSessionNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	rec := store.Record{Session: session}
	if rec.Emotion, err = o.opts.Store.LoadEmotion(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Record{}, err
	}
	if rec.Animation, err = o.opts.Store.LoadAnimation(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Record{}, err
	}
	return rec, nil
}

// publish sends a required event, blocking under backpressure.
func (o *Orchestrator) publish(ctx context.Context, rt *runtime, turnID string, name event.Name, data any) error {
	sink := rt.currentSink()
	if sink == nil {
		return nil
	}
	return sink.Publish(ctx, event.New(name, rt.id(), turnID, data, o.now()))
}

// advise sends an advisory event that is dropped when the queue is full.
func (o *Orchestrator) advise(rt *runtime, turnID string, name event.Name, data any) {
	sink := rt.currentSink()
	if sink == nil {
		return
	}
	sink.TryPublish(event.New(name, rt.id(), turnID, data, o.now()))
}

func (o *Orchestrator) persist(rt *runtime) {
	rt.mu.Lock()
	rec := rt.record()
	rt.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.opts.Store.Save(ctx, rec); err != nil {
		log.Error().Err(err).Str("session", rt.id()).Msg("failed to persist session")
	}
}

// idleLoop blinks, glances around and decays the emotion between turns.
// It only changes state; nothing is published.
func (o *Orchestrator) idleLoop(rt *runtime) {
	defer rt.wg.Done()
	ticker := time.NewTicker(o.opts.Animation.IdleTick)
	defer ticker.Stop()

	for {
		select {
		case <-rt.ctx.Done():
			return
		case <-ticker.C:
			now := o.now()
			rt.mu.Lock()
			if rt.activeTurn() == nil {
				rt.emotion = o.opts.Machine.Decay(rt.emotion, now)
				if anim, changed := o.opts.Machine.IdleTick(rt.anim, now); changed {
					rt.anim = anim
				}
			}
			rt.mu.Unlock()
		}
	}
}
