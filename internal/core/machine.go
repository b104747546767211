// Package core provides the pilot engine: the transition table, the action
// dispatcher, the velocity resolver and the event loop that ties them to a
// mailbox and an actuator.
//
// A Machine owns the pilot state and velocity. Only its own goroutine writes
// them; producers interact with it solely through the mailbox.
package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/comalice/commando/internal/logging"
	"github.com/comalice/commando/internal/primitives"
)

// Mailbox is the consumer side of the event channel.
type Mailbox interface {
	Receive(ctx context.Context) (primitives.Message, error)
	Post(msg primitives.Message) error
	Close() error
}

// Snapshot is the serializable state of a pilot after a transition.
type Snapshot struct {
	PilotID      string                    `json:"pilotID" yaml:"pilotID"`
	TableVersion string                    `json:"tableVersion" yaml:"tableVersion"`
	Sequence     uint64                    `json:"sequence" yaml:"sequence"`
	State        primitives.State          `json:"state" yaml:"state"`
	Velocity     primitives.VelocityVector `json:"velocity" yaml:"velocity"`
	Pending      primitives.VelocityVector `json:"pending" yaml:"pending"`
	LastEvent    primitives.Event          `json:"lastEvent" yaml:"lastEvent"`
	Timestamp    time.Time                 `json:"timestamp" yaml:"timestamp"`
}

// TransitionRecord describes one fired transition.
type TransitionRecord struct {
	PilotID   string            `json:"pilotID" yaml:"pilotID"`
	Sequence  uint64            `json:"sequence" yaml:"sequence"`
	From      primitives.State  `json:"from" yaml:"from"`
	Event     primitives.Event  `json:"event" yaml:"event"`
	To        primitives.State  `json:"to" yaml:"to"`
	Action    primitives.Action `json:"action" yaml:"action"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
}

// Persister stores pilot snapshots.
type Persister interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context, pilotID string) (Snapshot, error)
}

// Publisher receives every fired transition, in processing order.
type Publisher interface {
	Publish(ctx context.Context, record TransitionRecord) error
	Close() error
}

// Visualizer renders a transition table.
type Visualizer interface {
	ExportDOT(table *Table, current primitives.State) string
}

// Option applies configuration to Machine via functional options pattern.
type Option func(*Machine)

// Machine is the pilot engine.
type Machine struct {
	id         string
	table      *Table
	runner     ActionRunner
	overrides  map[primitives.Action]ActionFunc
	logger     *logging.Logger
	persister  Persister
	publisher  Publisher
	visualizer Visualizer
	haltOnStop bool

	mailbox  Mailbox
	actuator Actuator

	mu       sync.RWMutex
	state    primitives.State
	current  primitives.VelocityVector
	pending  primitives.VelocityVector
	sequence uint64

	epoch    atomic.Uint64
	launched atomic.Bool
	done     chan struct{}
	err      error
}

// NewMachine creates a machine in Idle with zero velocity. Nothing runs
// until Launch.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		table:   DefaultTable(),
		logger:  logging.NopLogger(),
		state:   primitives.StateIdle,
		current: primitives.ZeroVelocity(),
		pending: primitives.ZeroVelocity(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		handlers := DefaultHandlers()
		for a, h := range m.overrides {
			handlers[a] = h
		}
		d, err := NewDispatcher(handlers)
		if err != nil {
			panic(err)
		}
		m.runner = d
	}
	m.logger = m.logger.WithComponent("engine")
	if m.id != "" {
		m.logger = m.logger.WithPilot(m.id)
	}
	return m
}

// Launch opens the actuator and starts the event loop on its own goroutine.
// The loop ignores cancellation of ctx; it ends only by processing a stop
// request or on a transport failure.
func (m *Machine) Launch(ctx context.Context, mb Mailbox, act Actuator) error {
	if !m.launched.CompareAndSwap(false, true) {
		return &SetupError{Op: "launch", Err: ErrAlreadyLaunched}
	}
	if mb == nil || act == nil {
		m.launched.Store(false)
		return &SetupError{Op: "launch", Err: errors.New("mailbox and actuator are required")}
	}
	if err := act.Open(ctx); err != nil {
		m.launched.Store(false)
		return &SetupError{Op: "open actuator", Err: err}
	}
	m.bind(mb, act)

	m.logger.Info("pilot engine started", "state", m.State().String(), "table_version", m.table.Version())
	go m.run(context.WithoutCancel(ctx))
	return nil
}

func (m *Machine) bind(mb Mailbox, act Actuator) {
	m.mailbox = mb
	m.actuator = act
}

// run is the private event loop goroutine.
func (m *Machine) run(ctx context.Context) {
	for {
		msg, err := m.mailbox.Receive(ctx)
		if err != nil {
			m.finish(&TransportError{Op: "receive", Err: err})
			return
		}
		if err := m.step(ctx, msg); err != nil {
			m.finish(err)
			return
		}
		if m.State().Terminal() {
			m.finish(nil)
			return
		}
	}
}

// step processes one message. Only transport failures are returned; action
// failures are logged and the transition still commits.
func (m *Machine) step(ctx context.Context, msg primitives.Message) error {
	from := m.State()
	tr, ok := m.table.Lookup(from, msg.Event)
	if !ok {
		m.logger.Debug("event discarded", "state", from.String(), "event", msg.Event.String())
		return nil
	}

	if msg.Event == primitives.EventVelocityRequested {
		v := msg.Velocity
		if msg.Epoch < m.epoch.Load() {
			m.logger.Debug("velocity request cancelled by emergency stop", "velocity", v.String())
			v = primitives.ZeroVelocity()
		}
		m.mu.Lock()
		m.pending = v
		m.mu.Unlock()
	}

	x := &Execution{m: m, Message: msg, From: from, To: tr.Next}
	var transportErr error
	if err := m.runner.Run(ctx, tr.Action, x); err != nil {
		if errors.Is(err, ErrTransport) {
			transportErr = err
		} else {
			m.logger.Error("action failed", "action", tr.Action.String(), "state", from.String(), "error", err)
		}
	}

	m.mu.Lock()
	m.state = tr.Next
	m.sequence++
	m.mu.Unlock()

	m.logger.Debug("transition",
		"from", from.String(),
		"event", msg.Event.String(),
		"to", tr.Next.String(),
		"action", tr.Action.String(),
	)
	m.observe(ctx, from, msg.Event, tr)

	if transportErr != nil {
		return transportErr
	}
	return m.enter(tr.Next)
}

// enter runs the entry probe of the Checking*Velocity states, which turns
// the staged velocity into a zero / non-zero follow-up event.
func (m *Machine) enter(s primitives.State) error {
	switch s {
	case primitives.StateCheckingIdleVelocity, primitives.StateCheckingRunVelocity:
		if m.Pending().IsZero() {
			return m.post(primitives.EventVelocityIsZero)
		}
		return m.post(primitives.EventVelocityIsNonZero)
	}
	return nil
}

func (m *Machine) post(e primitives.Event) error {
	if err := m.mailbox.Post(primitives.NewMessage(e)); err != nil {
		return &TransportError{Op: "post " + e.String(), Err: err}
	}
	return nil
}

// observe hands the committed transition to the persister and publisher.
func (m *Machine) observe(ctx context.Context, from primitives.State, e primitives.Event, tr Transition) {
	if m.persister == nil && m.publisher == nil {
		return
	}
	snap := m.Snapshot()
	snap.LastEvent = e

	if m.persister != nil {
		if err := m.persister.Save(ctx, snap); err != nil {
			m.logger.Warn("snapshot not saved", "sequence", snap.Sequence, "error", err)
		}
	}
	if m.publisher != nil {
		rec := TransitionRecord{
			PilotID:   m.id,
			Sequence:  snap.Sequence,
			From:      from,
			Event:     e,
			To:        tr.Next,
			Action:    tr.Action,
			Timestamp: snap.Timestamp,
		}
		if err := m.publisher.Publish(ctx, rec); err != nil {
			m.logger.Warn("transition not published", "sequence", rec.Sequence, "error", err)
		}
	}
}

// finish releases the mailbox and actuator and marks the loop done.
func (m *Machine) finish(err error) {
	m.err = err
	if cerr := m.mailbox.Close(); cerr != nil {
		m.logger.Warn("mailbox close failed", "error", cerr)
	}
	if cerr := m.actuator.Close(); cerr != nil {
		m.logger.Warn("actuator close failed", "error", cerr)
	}
	if m.publisher != nil {
		if cerr := m.publisher.Close(); cerr != nil {
			m.logger.Warn("publisher close failed", "error", cerr)
		}
	}
	if err != nil {
		m.logger.Error("pilot engine stopped abnormally", "state", m.State().String(), "error", err)
	} else {
		m.logger.Info("pilot engine terminated")
	}
	close(m.done)
}

// Epoch returns the current emergency stop generation. Producers stamp it
// into velocity requests.
func (m *Machine) Epoch() uint64 { return m.epoch.Load() }

// CancelVelocityRequests starts a new emergency stop generation and returns
// it. Velocity requests stamped with an older epoch that are still queued
// resolve to a zero vector when processed.
func (m *Machine) CancelVelocityRequests() uint64 { return m.epoch.Add(1) }

// ID returns the pilot ID, if one was configured.
func (m *Machine) ID() string { return m.id }

// Table returns the transition table.
func (m *Machine) Table() *Table { return m.table }

// State returns the current state (thread-safe read).
func (m *Machine) State() primitives.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Velocity returns the committed velocity (thread-safe read).
func (m *Machine) Velocity() primitives.VelocityVector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Pending returns the velocity awaiting commit (thread-safe read).
func (m *Machine) Pending() primitives.VelocityVector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending
}

// Snapshot returns a copy of the machine's runtime state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		PilotID:      m.id,
		TableVersion: m.table.Version(),
		Sequence:     m.sequence,
		State:        m.state,
		Velocity:     m.current,
		Pending:      m.pending,
		Timestamp:    time.Now(),
	}
}

// Done is closed when the event loop has exited.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Err returns the reason the loop exited: nil after a normal termination,
// a TransportError otherwise. Only meaningful after Done is closed.
func (m *Machine) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Wait blocks until the loop exits or ctx ends.
func (m *Machine) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Visualize returns the Graphviz DOT rendering of the table with the current
// state highlighted.
func (m *Machine) Visualize() string {
	if m.visualizer == nil {
		return "ERROR: No visualizer configured. Use WithVisualizer(&production.DefaultVisualizer{})"
	}
	return m.visualizer.ExportDOT(m.table, m.State())
}
