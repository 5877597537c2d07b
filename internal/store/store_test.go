package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tutor/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func runStoreSuite(t *testing.T, s Store, key chat.Key) {
	ctx := context.Background()

	_, err := s.LoadSession(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadEmotion(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadAnimation(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	session := chat.NewSession(key, "en", testNow)
	session.Active = true
	session.AppendTurn(chat.Turn{
		ID:          "t1",
		Input:       "hola",
		Output:      "¡Hola! How are you?",
		Emotion:     emotion.Happy,
		Intensity:   0.6,
		State:       chat.TurnCompleted,
		StartedAt:   testNow,
		CompletedAt: testNow.Add(time.Second),
	}, 0, 10, nil)
	session.AddNote("use 'the' instead of 'la'", 5)
	require.NoError(t, s.SaveSession(ctx, session))

	got, err := s.LoadSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key.ID(), got.ID)
	assert.True(t, got.Active)
	require.Len(t, got.History, 1)
	assert.Equal(t, "¡Hola! How are you?", got.History[0].Output)
	assert.Equal(t, []string{"use 'the' instead of 'la'"}, got.LearningNotes)

	es := avatar.NewEmotionState(0.05, 0.5, true, testNow)
	es.Label, es.Intensity = emotion.Encouraging, 0.7
	require.NoError(t, s.SaveEmotion(ctx, key, es))
	gotES, err := s.LoadEmotion(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, emotion.Encouraging, gotES.Label)
	assert.InDelta(t, 0.7, gotES.Intensity, 1e-9)
	assert.True(t, gotES.AutoDecay)

	as := avatar.NewAnimationState(testNow)
	as.Weights.Set(avatar.ExprHappy, 0.8)
	require.NoError(t, s.SaveAnimation(ctx, key, as))
	gotAS, err := s.LoadAnimation(ctx, key)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, gotAS.Weights[avatar.ExprHappy], 1e-9)
	assert.True(t, gotAS.IdleEnabled)

	session.Reset(testNow.Add(time.Minute))
	es.Label, es.Intensity = emotion.Neutral, 0
	require.NoError(t, s.Save(ctx, Record{Session: session, Emotion: es, Animation: as}))
	got, err = s.LoadSession(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got.History)
	gotES, err = s.LoadEmotion(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, emotion.Neutral, gotES.Label)
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore(), chat.Key{UserID: "u1", CharacterID: "sofia"})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := chat.Key{UserID: "u1", CharacterID: "kenji"}
	session := chat.NewSession(key, "en", testNow)
	require.NoError(t, s.SaveSession(ctx, session))

	session.AddNote("mutated after save", 5)
	got, err := s.LoadSession(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got.LearningNotes)

	got.AddNote("mutated after load", 5)
	again, err := s.LoadSession(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, again.LearningNotes)
}

func TestMemoryStoreRejectsNilSession(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.SaveSession(context.Background(), nil))
	assert.Error(t, s.Save(context.Background(), Record{}))
}

// Requires a reachable Redis at REDIS_ADDR.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := NewRedisStore(config.StoreConfig{RedisAddr: addr, KeyPrefix: "ztutor-test"})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer s.Close()

	key := chat.Key{UserID: "test-" + time.Now().Format("150405.000000"), CharacterID: "mei"}
	defer s.rdb.Del(context.Background(), s.sessionKey(key), s.emotionKey(key), s.animationKey(key))

	runStoreSuite(t, s, key)
}
