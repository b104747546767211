package production

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/comalice/commando/internal/core"
)

// ChannelPublisher forwards transition records to a Go channel. Publish
// never blocks the engine: records are dropped while the channel is full.
type ChannelPublisher struct {
	ch      chan<- core.TransitionRecord
	dropped atomic.Uint64
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
// The publisher owns ch and closes it on Close.
func NewChannelPublisher(ch chan<- core.TransitionRecord) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, record core.TransitionRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	select {
	case p.ch <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.dropped.Add(1)
		return nil
	}
}

// Dropped reports how many records were discarded for lack of room.
func (p *ChannelPublisher) Dropped() uint64 { return p.dropped.Load() }

func (p *ChannelPublisher) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.ch)
		p.mu.Unlock()
	})
	return nil
}
