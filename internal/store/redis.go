package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/metrics"
	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
)

// RedisStore keeps each record as a JSON string under
// {prefix}:session:{user}:{character}[:emotion|:animation].
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg config.StoreConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ztutor"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) sessionKey(key chat.Key) string {
	return s.prefix + ":session:" + key.ID()
}

func (s *RedisStore) emotionKey(key chat.Key) string {
	return s.sessionKey(key) + ":emotion"
}

func (s *RedisStore) animationKey(key chat.Key) string {
	return s.sessionKey(key) + ":animation"
}

func (s *RedisStore) LoadSession(ctx context.Context, key chat.Key) (*chat.Session, error) {
	var session chat.Session
	if err := s.get(ctx, "load_session", s.sessionKey(key), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, session *chat.Session) error {
	if session == nil {
		return errors.New("nil session")
	}
	return s.set(ctx, "save_session", s.sessionKey(session.Key()), session)
}

func (s *RedisStore) LoadEmotion(ctx context.Context, key chat.Key) (avatar.EmotionState, error) {
	var state avatar.EmotionState
	err := s.get(ctx, "load_emotion", s.emotionKey(key), &state)
	return state, err
}

func (s *RedisStore) SaveEmotion(ctx context.Context, key chat.Key, state avatar.EmotionState) error {
	return s.set(ctx, "save_emotion", s.emotionKey(key), state)
}

func (s *RedisStore) LoadAnimation(ctx context.Context, key chat.Key) (avatar.AnimationState, error) {
	var state avatar.AnimationState
	err := s.get(ctx, "load_animation", s.animationKey(key), &state)
	return state, err
}

func (s *RedisStore) SaveAnimation(ctx context.Context, key chat.Key, state avatar.AnimationState) error {
	return s.set(ctx, "save_animation", s.animationKey(key), state)
}

// Save writes all three records in one MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if rec.Session == nil {
		return errors.New("nil session")
	}
	key := rec.Session.Key()
	values := map[string]any{
		s.sessionKey(key):   rec.Session,
		s.emotionKey(key):   rec.Emotion,
		s.animationKey(key): rec.Animation,
	}
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		encoded[k] = data
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, data := range encoded {
			pipe.Set(ctx, k, data, 0)
		}
		return nil
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis save %s: %w", key.ID(), err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) get(ctx context.Context, op, key string, dst any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) set(ctx context.Context, op, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
