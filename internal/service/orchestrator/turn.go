package orchestrator

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	turnGenerating int32 = iota
	turnCommitted
	turnCancelled
)

// turn is one in-flight reply. Only a turn still generating can be cancelled;
// once committed it finalizes normally.
type turn struct {
	id       string
	input    string
	accepted time.Time

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}
}

func newTurn(parent context.Context, id, input string, now time.Time) *turn {
	ctx, cancel := context.WithCancel(parent)
	return &turn{id: id, input: input, accepted: now, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

func (t *turn) tryCancel() bool {
	if !t.state.CompareAndSwap(turnGenerating, turnCancelled) {
		return false
	}
	t.cancel()
	return true
}

func (t *turn) commit() bool {
	return t.state.CompareAndSwap(turnGenerating, turnCommitted)
}

func (t *turn) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
