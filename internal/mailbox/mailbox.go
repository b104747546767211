// Package mailbox provides the bounded FIFO event channel feeding the pilot
// engine.
//
// A Mailbox accepts messages from any number of producers and delivers them,
// in arrival order, to exactly one consumer. Send blocks while the mailbox is
// full; Receive blocks while it is empty. Nothing is ever dropped or
// reordered.
//
// The consumer may also Post follow-up messages to itself. Posts draw from a
// reserved headroom that producers cannot fill, so the consumer never blocks
// on its own mailbox, and a pending follow-up is received before any queued
// producer message.
package mailbox

import (
	"context"
	"errors"
	"sync"

	"github.com/comalice/commando/internal/primitives"
)

// DefaultCapacity is the number of producer slots of a mailbox.
const DefaultCapacity = 10

// reserve is the number of slots kept for consumer follow-ups.
const reserve = 1

var (
	// ErrClosed is returned by every operation on a closed mailbox.
	ErrClosed = errors.New("mailbox closed")
	// ErrNoHeadroom is returned by Post when the follow-up reserve is in use.
	ErrNoHeadroom = errors.New("mailbox follow-up reserve exhausted")
)

// Mailbox is a bounded multi-writer single-reader queue. Send blocks while full.
type Mailbox struct {
	name      string
	capacity  int
	queue     chan primitives.Message
	followUps chan primitives.Message
	closed    chan struct{}
	once      sync.Once
}

// New creates an unnamed mailbox. A capacity below 1 selects DefaultCapacity.
func New(capacity int) *Mailbox {
	return newMailbox("", capacity)
}

func newMailbox(name string, capacity int) *Mailbox {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Mailbox{
		name:      name,
		capacity:  capacity,
		queue:     make(chan primitives.Message, capacity),
		followUps: make(chan primitives.Message, reserve),
		closed:    make(chan struct{}),
	}
}

// Name returns the name the mailbox was opened under, if any.
func (m *Mailbox) Name() string { return m.name }

// Capacity returns the number of producer slots.
func (m *Mailbox) Capacity() int { return m.capacity }

// Len returns the number of queued messages, follow-ups included.
func (m *Mailbox) Len() int { return len(m.queue) + len(m.followUps) }

// Send enqueues msg at the tail, blocking while the mailbox is full.
// It returns ErrClosed if the mailbox is or becomes closed, and ctx.Err()
// if ctx ends first; in both cases nothing was enqueued.
func (m *Mailbox) Send(ctx context.Context, msg primitives.Message) error {
	if m.isClosed() {
		return ErrClosed
	}
	select {
	case m.queue <- msg:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post enqueues a consumer follow-up without blocking. Receive returns a
// posted follow-up ahead of any queued producer message; this is the only
// exception to FIFO order.
func (m *Mailbox) Post(msg primitives.Message) error {
	if m.isClosed() {
		return ErrClosed
	}
	select {
	case m.followUps <- msg:
		return nil
	default:
		return ErrNoHeadroom
	}
}

// Receive removes and returns the next message, blocking while the mailbox
// is empty. Follow-ups come first; producer messages in arrival order.
func (m *Mailbox) Receive(ctx context.Context) (primitives.Message, error) {
	if m.isClosed() {
		return primitives.Message{}, ErrClosed
	}
	select {
	case msg := <-m.followUps:
		return msg, nil
	default:
	}
	select {
	case msg := <-m.followUps:
		return msg, nil
	case msg := <-m.queue:
		return msg, nil
	case <-m.closed:
		return primitives.Message{}, ErrClosed
	case <-ctx.Done():
		return primitives.Message{}, ctx.Err()
	}
}

// Close closes the mailbox. Queued messages are discarded. Safe to call more
// than once.
func (m *Mailbox) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// Closed returns a channel closed when the mailbox is closed.
func (m *Mailbox) Closed() <-chan struct{} { return m.closed }

func (m *Mailbox) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}
