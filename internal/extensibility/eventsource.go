package extensibility

import (
	"sync"
	"time"

	"github.com/comalice/commando/internal/primitives"
)

// EventSource produces pilot messages from outside the engine. The channel
// is closed when the source is exhausted or stopped.
type EventSource interface {
	Events() <-chan primitives.Message
}

// ChannelEventSource is an EventSource implementation backed by a Go channel.
type ChannelEventSource struct {
	ch chan primitives.Message
}

// Events returns the receive-only channel for messages.
func (s *ChannelEventSource) Events() <-chan primitives.Message {
	return s.ch
}

// NewChannelEventSource creates a new ChannelEventSource with the given channel.
func NewChannelEventSource(ch chan primitives.Message) *ChannelEventSource {
	return &ChannelEventSource{ch: ch}
}

// TimerEventSource emits the same event every interval. Ticks are dropped
// while the consumer is behind.
type TimerEventSource struct {
	ch     chan primitives.Message
	event  primitives.Event
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

// NewTimerEventSource starts a TimerEventSource emitting event every d.
func NewTimerEventSource(event primitives.Event, d time.Duration) *TimerEventSource {
	t := &TimerEventSource{
		ch:     make(chan primitives.Message, 1),
		event:  event,
		ticker: time.NewTicker(d),
		stop:   make(chan struct{}),
	}
	go t.run()
	return t
}

// NewBumpTicker is a TimerEventSource emitting CheckRequested.
func NewBumpTicker(d time.Duration) *TimerEventSource {
	return NewTimerEventSource(primitives.EventCheckRequested, d)
}

func (t *TimerEventSource) run() {
	defer close(t.ch)
	defer t.ticker.Stop()
	for {
		select {
		case <-t.ticker.C:
			select {
			case t.ch <- primitives.NewMessage(t.event):
			default:
			}
		case <-t.stop:
			return
		}
	}
}

// Events returns the message channel.
func (t *TimerEventSource) Events() <-chan primitives.Message {
	return t.ch
}

// Stop stops the ticker and closes the channel. Safe to call more than once.
func (t *TimerEventSource) Stop() {
	t.once.Do(func() { close(t.stop) })
}
