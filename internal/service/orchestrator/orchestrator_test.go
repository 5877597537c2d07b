package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/event"
	avatarmodel "github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
	"github.com/zhouzirui/z-tutor/backend/internal/service/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/service/generation"
	"github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
	"github.com/zhouzirui/z-tutor/backend/internal/service/voice"
	"github.com/zhouzirui/z-tutor/backend/internal/store"
)

type streamFunc func(call int, ctx context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error)

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	script streamFunc
}

func (g *fakeGenerator) Stream(ctx context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	return g.script(call, ctx, req, onChunk)
}

func reply(chunks ...string) streamFunc {
	return func(_ int, _ context.Context, _ generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		for _, c := range chunks {
			if err := onChunk(c); err != nil {
				return generation.Result{}, err
			}
		}
		return generation.Result{Text: strings.Join(chunks, ""), Provider: "fake", Attempts: 1}, nil
	}
}

type fakeVoice struct{}

func (fakeVoice) Enabled() bool { return true }

func (fakeVoice) Synthesize(_ context.Context, req voice.Request) (*voice.Result, error) {
	return &voice.Result{AudioURL: "/audio/test.mp3", Text: req.Text, Emotion: req.Emotion, Duration: time.Second}, nil
}

type harness struct {
	orch  *Orchestrator
	store *store.MemoryStore
	queue *event.Queue
	id    string
}

func newHarness(t *testing.T, script streamFunc, tweak func(*Options)) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	opts := Options{
		Session: config.SessionConfig{
			AllowInterrupt:  true,
			HistoryTokens:   4000,
			MaxHistoryTurns: 50,
			MaxNotes:        10,
			SlowResponse:    time.Minute,
			OutboxSize:      128,
		},
		Animation: config.AnimationConfig{
			TransitionSpeed: 0.5,
			SnapThreshold:   0.4,
			DecayRate:       0.05,
			AutoDecay:       true,
			IdleWindow:      10 * time.Second,
			BlinkInterval:   4 * time.Second,
		},
		Personas: persona.NewMemoryStore(persona.Seed()),
		Store:    st,
		Builder: prompt.NewBuilder(config.PromptConfig{
			TotalTokens:       2000,
			PersonalityTokens: 600,
			HistoryTokens:     800,
			LearningTokens:    200,
		}),
		Generator: &fakeGenerator{script: script},
		Voice:     fakeVoice{},
	}
	if tweak != nil {
		tweak(&opts)
	}
	opts.Machine = avatar.NewMachine(opts.Animation, rand.NewPCG(1, 2))

	h := &harness{orch: New(opts), store: st, queue: event.NewQueue(128)}
	id, err := h.orch.Open(context.Background(), "u1", "sofia", "", h.queue)
	require.NoError(t, err)
	h.id = id
	t.Cleanup(h.orch.Shutdown)

	switched := h.next(t)
	require.Equal(t, event.CharacterSwitched, switched.Name)
	return h
}

func (h *harness) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-h.queue.Events():
		return e
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
		return event.Event{}
	}
}

// until reads events up to and including the first one named name for turnID.
func (h *harness) until(t *testing.T, name event.Name, turnID string) []event.Event {
	t.Helper()
	var seen []event.Event
	for {
		e := h.next(t)
		seen = append(seen, e)
		if e.Name == name && (turnID == "" || e.TurnID == turnID) {
			return seen
		}
	}
}

func names(events []event.Event) []event.Name {
	out := make([]event.Name, 0, len(events))
	for _, e := range events {
		out = append(out, e.Name)
	}
	return out
}

func TestHandleMessageEventOrder(t *testing.T) {
	h := newHarness(t, reply("¡Hola! ", "Great job today."), nil)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "hola, I practiced a lot")
	require.NoError(t, err)
	require.NotEmpty(t, turnID)

	events := h.until(t, event.VoiceAudio, turnID)
	assert.Equal(t, []event.Name{
		event.CharacterThinking,
		event.CharacterStream,
		event.CharacterStream,
		event.CharacterStream,
		event.CharacterResponse,
		event.VRMAnimation,
		event.PerformanceMetrics,
		event.VoiceAudio,
	}, names(events))

	for _, e := range events {
		assert.Equal(t, h.id, e.SessionID)
		assert.Equal(t, turnID, e.TurnID)
	}
	complete := events[3].Data.(event.StreamPayload)
	assert.True(t, complete.IsComplete)
	assert.Empty(t, complete.Text)

	resp := events[4].Data.(event.ResponsePayload)
	assert.Equal(t, "¡Hola! Great job today.", resp.Text)
	assert.False(t, resp.IsError)
	assert.False(t, resp.Fallback)
	require.NotNil(t, resp.LanguageMix)

	history, err := h.orch.History(context.Background(), h.id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, chat.TurnCompleted, history[0].State)
	assert.Equal(t, resp.Text, history[0].Output)

	stored, err := h.store.LoadSession(context.Background(), chat.Key{UserID: "u1", CharacterID: "sofia"})
	require.NoError(t, err)
	assert.Len(t, stored.History, 1)
	assert.Equal(t, chat.LockIdle, stored.LockState)
}

func TestHandleMessageValidation(t *testing.T) {
	h := newHarness(t, reply("ok"), nil)

	_, err := h.orch.HandleMessage(context.Background(), h.id, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = h.orch.HandleMessage(context.Background(), "nobody:sofia", "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.orch.Open(context.Background(), "u1", "ghost", "", event.NewQueue(1))
	assert.ErrorIs(t, err, persona.ErrUnknownCharacter)
}

func TestNewMessageCancelsStreamingTurn(t *testing.T) {
	script := func(call int, ctx context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		if call == 1 {
			if err := onChunk("Let me think "); err != nil {
				return generation.Result{}, err
			}
			<-ctx.Done()
			return generation.Result{}, ctx.Err()
		}
		return reply("Second answer.")(call, ctx, req, onChunk)
	}
	h := newHarness(t, script, nil)

	first, err := h.orch.HandleMessage(context.Background(), h.id, "first question")
	require.NoError(t, err)
	h.until(t, event.CharacterStream, first)

	second, err := h.orch.HandleMessage(context.Background(), h.id, "actually, second question")
	require.NoError(t, err)

	events := h.until(t, event.CharacterResponse, second)
	for _, e := range events {
		assert.NotEqual(t, first, e.TurnID, "cancelled turn must not emit %s", e.Name)
	}

	history, err := h.orch.History(context.Background(), h.id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first, history[0].ID)
	assert.Equal(t, chat.TurnCancelled, history[0].State)
	assert.Empty(t, history[0].Output)
	assert.Equal(t, chat.TurnCompleted, history[1].State)
	assert.Equal(t, "Second answer.", history[1].Output)
}

func TestBusyWhenInterruptDisabled(t *testing.T) {
	release := make(chan struct{})
	script := func(call int, ctx context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return generation.Result{}, ctx.Err()
		}
		return reply("Done.")(call, ctx, req, onChunk)
	}
	h := newHarness(t, script, func(o *Options) { o.Session.AllowInterrupt = false })

	first, err := h.orch.HandleMessage(context.Background(), h.id, "one")
	require.NoError(t, err)
	h.until(t, event.CharacterThinking, first)

	_, err = h.orch.HandleMessage(context.Background(), h.id, "two")
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	h.until(t, event.CharacterResponse, first)
}

func TestMalformedReplyEmitsErrorEvent(t *testing.T) {
	script := func(_ int, _ context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		if err := onChunk(req.ApologyLine); err != nil {
			return generation.Result{}, err
		}
		return generation.Result{Text: req.ApologyLine, Provider: generation.ProviderFallback, IsError: true}, nil
	}
	h := newHarness(t, script, nil)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "hello")
	require.NoError(t, err)

	events := h.until(t, event.VRMAnimation, turnID)
	n := len(events)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, event.CharacterResponse, events[n-3].Name)
	assert.True(t, events[n-3].Data.(event.ResponsePayload).IsError)
	assert.Equal(t, event.Error, events[n-2].Name)
	assert.Equal(t, event.ErrTypeGeneration, events[n-2].Data.(event.ErrorPayload).Type)

	history, err := h.orch.History(context.Background(), h.id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsError)
}

func TestFallbackReplyHasNoErrorEvent(t *testing.T) {
	script := func(_ int, _ context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		if err := onChunk(req.FallbackLine); err != nil {
			return generation.Result{}, err
		}
		return generation.Result{Text: req.FallbackLine, Provider: generation.ProviderFallback, Fallback: true}, nil
	}
	h := newHarness(t, script, nil)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "hello")
	require.NoError(t, err)

	events := h.until(t, event.VRMAnimation, turnID)
	n := len(events)
	assert.Equal(t, event.CharacterResponse, events[n-2].Name)
	resp := events[n-2].Data.(event.ResponsePayload)
	assert.True(t, resp.Fallback)
	assert.False(t, resp.IsError)
	assert.NotContains(t, names(events), event.Error)
}

func TestSlowResponseWarning(t *testing.T) {
	script := func(call int, ctx context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		time.Sleep(5 * time.Millisecond)
		return reply("Sorry for the wait.")(call, ctx, req, onChunk)
	}
	h := newHarness(t, script, func(o *Options) {
		o.Session.SlowResponse = time.Millisecond
		o.Voice = nil
	})

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "hello?")
	require.NoError(t, err)

	events := h.until(t, event.StreamWarning, turnID)
	metricsEvent := events[len(events)-2]
	require.Equal(t, event.PerformanceMetrics, metricsEvent.Name)
	assert.True(t, metricsEvent.Data.(event.MetricsPayload).IsSlowResponse)
}

func TestLearningNotesFromLearnerInput(t *testing.T) {
	h := newHarness(t, reply("Nice! You mean \"the store\"."), nil)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "I went to la store")
	require.NoError(t, err)
	h.until(t, event.CharacterResponse, turnID)

	rec, err := h.orch.Snapshot(context.Background(), h.id)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Session.LearningNotes)
}

func TestClearConversation(t *testing.T) {
	h := newHarness(t, reply("Great job! I'm so happy for you!"), nil)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "I passed my exam")
	require.NoError(t, err)
	h.until(t, event.VoiceAudio, turnID)

	require.NoError(t, h.orch.ClearConversation(context.Background(), h.id))
	cleared := h.until(t, event.ConversationCleared, "")
	assert.True(t, cleared[len(cleared)-1].Data.(event.ClearedPayload).Cleared)

	rec, err := h.orch.Snapshot(context.Background(), h.id)
	require.NoError(t, err)
	assert.Empty(t, rec.Session.History)
	assert.Empty(t, rec.Session.LearningNotes)
	assert.Equal(t, emotion.Neutral, rec.Emotion.Label)
	assert.Zero(t, rec.Emotion.Intensity)
}

func TestCloseMarksInactive(t *testing.T) {
	h := newHarness(t, reply("Bye!"), nil)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "bye")
	require.NoError(t, err)
	h.until(t, event.CharacterResponse, turnID)

	require.NoError(t, h.orch.Close(h.id))
	assert.ErrorIs(t, h.orch.Close(h.id), ErrSessionNotFound)

	_, err = h.orch.HandleMessage(context.Background(), h.id, "hello again")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	stored, err := h.store.LoadSession(context.Background(), chat.Key{UserID: "u1", CharacterID: "sofia"})
	require.NoError(t, err)
	assert.False(t, stored.Active)

	history, err := h.orch.History(context.Background(), h.id)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, h.orch.ClearConversation(context.Background(), h.id))
	history, err = h.orch.History(context.Background(), h.id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestReopenRebindsSink(t *testing.T) {
	h := newHarness(t, reply("Welcome back."), nil)

	q2 := event.NewQueue(64)
	id, err := h.orch.Open(context.Background(), "u1", "sofia", "es", q2)
	require.NoError(t, err)
	assert.Equal(t, h.id, id)

	select {
	case e := <-q2.Events():
		assert.Equal(t, event.CharacterSwitched, e.Name)
		assert.Equal(t, "es", e.Data.(event.SwitchedPayload).Language)
	case <-time.After(time.Second):
		t.Fatal("reconnected sink should be announced")
	}

	// the stale connection going away must not close the session
	require.NoError(t, h.orch.Release(h.id, h.queue))
	_, err = h.orch.HandleMessage(context.Background(), h.id, "still there?")
	require.NoError(t, err)

	require.NoError(t, h.orch.Release(h.id, q2))
	_, err = h.orch.HandleMessage(context.Background(), h.id, "hello?")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRequestVoice(t *testing.T) {
	h := newHarness(t, reply("ok"), nil)

	require.NoError(t, h.orch.RequestVoice(context.Background(), h.id, "Repeat after me: gracias", "happy"))
	events := h.until(t, event.VoiceAudio, "")
	e := events[len(events)-1]
	assert.Empty(t, e.TurnID)
	assert.Equal(t, "happy", e.Data.(event.VoicePayload).Emotion)

	assert.ErrorIs(t, h.orch.RequestVoice(context.Background(), h.id, " ", ""), ErrEmptyMessage)
}

func TestIdleLoopDecaysEmotion(t *testing.T) {
	h := newHarness(t, reply("Great job! I'm so happy!"), func(o *Options) {
		o.Animation.IdleTick = 10 * time.Millisecond
		o.Animation.IdleWindow = 0
		o.Animation.DecayRate = 5
		o.Voice = nil
	})

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "I did it")
	require.NoError(t, err)
	h.until(t, event.CharacterResponse, turnID)

	require.Eventually(t, func() bool {
		rec, err := h.orch.Snapshot(context.Background(), h.id)
		return err == nil && rec.Emotion.Intensity == 0 && rec.Emotion.Label == emotion.Neutral && rec.Animation.Look != ""
	}, 5*time.Second, 10*time.Millisecond)
}

// slowFirstCompletion stalls the first save that carries a completed turn,
// holding that turn in finalization.
type slowFirstCompletion struct {
	*store.MemoryStore
	once  sync.Once
	delay time.Duration
}

func (s *slowFirstCompletion) Save(ctx context.Context, rec store.Record) error {
	if rec.Session != nil && len(rec.Session.CompletedTurns()) > 0 {
		s.once.Do(func() { time.Sleep(s.delay) })
	}
	return s.MemoryStore.Save(ctx, rec)
}

func TestCancelledTurnStillWaitsForCommittedTurn(t *testing.T) {
	script := func(call int, ctx context.Context, req generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		if call == 1 {
			return reply("One.")(call, ctx, req, onChunk)
		}
		return reply("Three.")(call, ctx, req, onChunk)
	}
	h := newHarness(t, script, func(o *Options) {
		o.Store = &slowFirstCompletion{MemoryStore: store.NewMemoryStore(), delay: 400 * time.Millisecond}
		o.Voice = nil
	})

	first, err := h.orch.HandleMessage(context.Background(), h.id, "one")
	require.NoError(t, err)
	for {
		e := h.next(t)
		if e.Name == event.CharacterStream && e.TurnID == first && e.Data.(event.StreamPayload).IsComplete {
			break
		}
	}

	second, err := h.orch.HandleMessage(context.Background(), h.id, "two")
	require.NoError(t, err)
	third, err := h.orch.HandleMessage(context.Background(), h.id, "three")
	require.NoError(t, err)

	events := h.until(t, event.CharacterResponse, third)
	firstThird, lastFirst := -1, -1
	for i, e := range events {
		assert.NotEqual(t, second, e.TurnID, "cancelled turn must not emit %s", e.Name)
		if e.TurnID == third && firstThird < 0 {
			firstThird = i
		}
		if e.TurnID == first {
			lastFirst = i
		}
	}
	require.GreaterOrEqual(t, firstThird, 0)
	assert.Less(t, lastFirst, firstThird, "turn three started before turn one finished: %v", names(events))
	assert.Contains(t, names(events[:firstThird]), event.VRMAnimation)

	history, err := h.orch.History(context.Background(), h.id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, chat.TurnCompleted, history[0].State)
	assert.Equal(t, chat.TurnCancelled, history[1].State)
	assert.Equal(t, chat.TurnCompleted, history[2].State)
	assert.Equal(t, "Three.", history[2].Output)
}

func TestConcurrentMessagesNeverOverlap(t *testing.T) {
	script := func(call int, ctx context.Context, _ generation.Request, onChunk generation.ChunkFunc) (generation.Result, error) {
		var text strings.Builder
		for i := range 3 {
			if err := ctx.Err(); err != nil {
				return generation.Result{}, err
			}
			chunk := fmt.Sprintf("part %d of reply %d. ", i, call)
			if err := onChunk(chunk); err != nil {
				return generation.Result{}, err
			}
			text.WriteString(chunk)
			time.Sleep(2 * time.Millisecond)
		}
		return generation.Result{Text: text.String(), Provider: "fake", Attempts: 1}, nil
	}
	h := newHarness(t, script, func(o *Options) { o.Voice = nil })

	const n = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.orch.HandleMessage(context.Background(), h.id, fmt.Sprintf("message %d", i))
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var (
		events  []event.Event
		history []chat.Turn
	)
	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-h.queue.Events():
				events = append(events, e)
				continue
			default:
			}
			break
		}
		rec, err := h.orch.Snapshot(context.Background(), h.id)
		if err != nil || len(rec.Session.History) != n {
			return false
		}
		history = rec.Session.History
		responded := map[string]bool{}
		for _, e := range events {
			if e.Name == event.PerformanceMetrics {
				responded[e.TurnID] = true
			}
		}
		for _, turn := range history {
			if turn.State == chat.TurnCompleted && !responded[turn.ID] {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	completed := map[string]bool{}
	for _, turn := range history {
		completed[turn.ID] = turn.State == chat.TurnCompleted
	}
	assert.True(t, completed[history[n-1].ID], "the last accepted turn must complete")

	// each turn's chunks form one uninterrupted run
	finishedStreams := map[string]bool{}
	lastStream := ""
	open := map[string]bool{}
	for _, e := range events {
		switch e.Name {
		case event.CharacterStream:
			if e.TurnID != lastStream {
				assert.False(t, finishedStreams[e.TurnID], "stream of %s resumed after another turn", e.TurnID)
				if lastStream != "" {
					finishedStreams[lastStream] = true
				}
				lastStream = e.TurnID
			}
		case event.CharacterThinking:
			if completed[e.TurnID] {
				open[e.TurnID] = true
			}
		case event.CharacterResponse:
			delete(open, e.TurnID)
		}
		assert.LessOrEqual(t, len(open), 1, "more than one live turn at once")
	}
}

func TestHelloScenario(t *testing.T) {
	h := newHarness(t, reply("Hi there! ", "¡Qué bueno verte!"), func(o *Options) {
		a := o.Animation
		es := avatarmodel.NewEmotionState(a.DecayRate, a.TransitionSpeed, a.AutoDecay, time.Now())
		es.Label, es.Intensity = emotion.Happy, 0.5
		key := chat.Key{UserID: "u1", CharacterID: "sofia"}
		require.NoError(t, o.Store.SaveEmotion(context.Background(), key, es))
	})

	rec, err := h.orch.Snapshot(context.Background(), h.id)
	require.NoError(t, err)
	require.Equal(t, emotion.Happy, rec.Emotion.Label)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "Hello")
	require.NoError(t, err)

	events := h.until(t, event.VoiceAudio, turnID)
	assert.Equal(t, []event.Name{
		event.CharacterThinking,
		event.CharacterStream,
		event.CharacterStream,
		event.CharacterStream,
		event.CharacterResponse,
		event.VRMAnimation,
		event.PerformanceMetrics,
		event.VoiceAudio,
	}, names(events))

	var streamed strings.Builder
	for _, e := range events[1:4] {
		streamed.WriteString(e.Data.(event.StreamPayload).Text)
	}
	assert.Equal(t, "Hi there! ¡Qué bueno verte!", streamed.String())

	resp := events[4].Data.(event.ResponsePayload)
	assert.Equal(t, "happy", resp.Emotion)
	assert.False(t, resp.IsError)
	assert.False(t, resp.Fallback)
	assert.Equal(t, "happy", events[5].Data.(event.AnimationPayload).Emotion)
	assert.Equal(t, "happy", events[7].Data.(event.VoicePayload).Emotion)
}

func TestVoiceSpeaksTurnEmotion(t *testing.T) {
	h := newHarness(t, reply("Okay."), nil)

	turnID, err := h.orch.HandleMessage(context.Background(), h.id, "I am so sad and tired")
	require.NoError(t, err)

	events := h.until(t, event.VoiceAudio, turnID)
	var resp event.ResponsePayload
	for _, e := range events {
		if e.Name == event.CharacterResponse {
			resp = e.Data.(event.ResponsePayload)
		}
	}
	assert.Equal(t, string(emotion.Encouraging), resp.Emotion)
	assert.Equal(t, resp.Emotion, events[len(events)-1].Data.(event.VoicePayload).Emotion)
}

func TestReleaseRacingRebindKeepsSession(t *testing.T) {
	h := newHarness(t, reply("ok"), nil)

	current := h.queue
	for range 50 {
		next := event.NewQueue(8)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.orch.Open(context.Background(), "u1", "sofia", "", next)
			assert.NoError(t, err)
		}()
		go func(stale event.Sink) {
			defer wg.Done()
			assert.NoError(t, h.orch.Release(h.id, stale))
		}(current)
		wg.Wait()

		rt, err := h.orch.lookup(h.id)
		require.NoError(t, err, "rebound session was closed")
		require.Equal(t, event.Sink(next), rt.currentSink())
		current = next
	}
}
