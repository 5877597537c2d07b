package orchestrator

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-tutor/backend/internal/event"
	avatarmodel "github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
	"github.com/zhouzirui/z-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/z-tutor/backend/internal/model/persona"
	"github.com/zhouzirui/z-tutor/backend/internal/store"
)

// runtime is the live state of one open session. mu guards every field below it.
type runtime struct {
	key     chat.Key
	persona persona.Persona

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	sink    event.Sink
	session *chat.Session
	emotion avatarmodel.EmotionState
	anim    avatarmodel.AnimationState
	current *turn
}

func (rt *runtime) id() string {
	return rt.key.ID()
}

func (rt *runtime) currentSink() event.Sink {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.sink
}

// record must be called with mu held.
func (rt *runtime) record() store.Record {
	return store.Record{
		Session:   rt.session.Clone(),
		Emotion:   rt.emotion.Clone(),
		Animation: rt.anim.Clone(),
	}
}

// activeTurn must be called with mu held.
func (rt *runtime) activeTurn() *turn {
	if rt.current == nil || rt.current.finished() {
		return nil
	}
	return rt.current
}
