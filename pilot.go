// Package commando is the control core of a mobile robot.
//
// A Pilot owns one engine goroutine that drives the robot's wheels through a
// fixed state machine. Callers never touch the machine directly: every
// command is a message sent to the pilot's bounded mailbox and processed in
// arrival order.
//
//	p := commando.New(commando.WithActuator(robot.NewSimulator()))
//	if err := p.Create(ctx); err != nil { ... }
//	_ = p.RequestVelocity(ctx, primitives.Forward, 50)
//	_ = p.RequestStop(ctx)
//	_ = p.Wait(ctx)
//	p.Destroy()
package commando

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/extensibility"
	"github.com/comalice/commando/internal/logging"
	"github.com/comalice/commando/internal/mailbox"
	"github.com/comalice/commando/internal/primitives"
)

// ErrNotCreated is returned by commands issued before Create succeeded.
var ErrNotCreated = errors.New("pilot not created")

// Pilot is the handle of a running pilot.
type Pilot struct {
	id        string
	name      string
	capacity  int
	namespace *mailbox.Namespace
	actuator  core.Actuator
	logger    *logging.Logger
	engine    []core.Option

	mu      sync.Mutex
	mb      *mailbox.Mailbox
	machine *core.Machine
}

// Option configures a Pilot.
type Option func(*Pilot)

// WithID sets the pilot ID. Defaults to a random UUID.
func WithID(id string) Option {
	return func(p *Pilot) {
		if id != "" {
			p.id = id
		}
	}
}

// WithName sets the mailbox name. Defaults to mailbox.DefaultName.
func WithName(name string) Option {
	return func(p *Pilot) {
		if name != "" {
			p.name = name
		}
	}
}

// WithCapacity sets the number of requests the mailbox holds before Send
// blocks.
func WithCapacity(n int) Option {
	return func(p *Pilot) {
		p.capacity = n
	}
}

// WithNamespace registers the mailbox in ns instead of mailbox.Default.
func WithNamespace(ns *mailbox.Namespace) Option {
	return func(p *Pilot) {
		if ns != nil {
			p.namespace = ns
		}
	}
}

// WithActuator sets the robot the pilot drives. Required.
func WithActuator(a core.Actuator) Option {
	return func(p *Pilot) {
		p.actuator = a
	}
}

// WithLogger sets the logger shared by the pilot and its engine.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pilot) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEngineOptions passes options through to the engine, e.g.
// core.WithPersister or core.WithActionRunner.
func WithEngineOptions(opts ...core.Option) Option {
	return func(p *Pilot) {
		p.engine = append(p.engine, opts...)
	}
}

// WithHaltOnStop makes every stop request also zero the wheels.
func WithHaltOnStop(halt bool) Option {
	return WithEngineOptions(core.WithHaltOnStop(halt))
}

// New prepares a pilot in Idle with zero velocity. Nothing is provisioned
// until Create.
func New(opts ...Option) *Pilot {
	p := &Pilot{
		id:        uuid.NewString(),
		name:      mailbox.DefaultName,
		capacity:  mailbox.DefaultCapacity,
		namespace: mailbox.Default,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create provisions the mailbox and the actuator and starts the engine.
// Failures are reported as *core.SetupError; Create may then be retried.
func (p *Pilot) Create(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.machine != nil {
		return &core.SetupError{Op: "create", Err: core.ErrAlreadyLaunched}
	}
	if p.actuator == nil {
		return &core.SetupError{Op: "create", Err: errors.New("no actuator configured")}
	}

	mb, err := p.namespace.Open(p.name, p.capacity)
	if err != nil {
		return &core.SetupError{Op: "open mailbox", Err: err}
	}

	opts := append([]core.Option{core.WithID(p.id), core.WithLogger(p.logger)}, p.engine...)
	m := core.NewMachine(opts...)
	if err := m.Launch(ctx, mb, p.actuator); err != nil {
		_ = p.namespace.Release(mb)
		return err
	}
	p.mb, p.machine = mb, m
	return nil
}

// RequestVelocity asks the pilot to move. Power must be non-negative and
// direction one of the four known directions; invalid commands are rejected
// with *core.CommandError before anything is sent.
func (p *Pilot) RequestVelocity(ctx context.Context, direction primitives.Direction, power int) error {
	v := primitives.VelocityVector{Direction: direction, Power: power}
	if err := v.Validate(); err != nil {
		var verr *primitives.VelocityError
		if errors.As(err, &verr) {
			return &core.CommandError{Field: verr.Field, Value: verr.Value, Reason: verr.Reason}
		}
		return &core.CommandError{Field: "velocity", Value: v, Reason: err.Error()}
	}
	m, _ := p.handles()
	if m == nil {
		return ErrNotCreated
	}
	return p.send(ctx, primitives.Message{
		Event:    primitives.EventVelocityRequested,
		Velocity: v,
		Epoch:    m.Epoch(),
	})
}

// RequestStop asks the pilot to terminate once the requests queued before
// it are processed.
func (p *Pilot) RequestStop(ctx context.Context) error {
	return p.send(ctx, primitives.NewMessage(primitives.EventStopRequested))
}

// EmergencyStop is RequestStop that also zeroes the wheels when processed.
// Velocity requests still queued ahead of it are cancelled at once: the
// engine handles each of them as a zero vector.
func (p *Pilot) EmergencyStop(ctx context.Context) error {
	m, _ := p.handles()
	if m == nil {
		return ErrNotCreated
	}
	msg := primitives.NewMessage(primitives.EventStopRequested)
	msg.Halt = true
	msg.Epoch = m.CancelVelocityRequests()
	return p.send(ctx, msg)
}

// RequestBumpCheck asks the pilot to poll the bump sensor. It has no effect
// unless the pilot is running.
func (p *Pilot) RequestBumpCheck(ctx context.Context) error {
	return p.send(ctx, primitives.NewMessage(primitives.EventCheckRequested))
}

// Attach forwards every message of src to the pilot until src closes or the
// pilot exits.
func (p *Pilot) Attach(src extensibility.EventSource) error {
	m, mb := p.handles()
	if m == nil {
		return ErrNotCreated
	}
	events := src.Events()
	go func() {
		for {
			select {
			case msg, ok := <-events:
				if !ok {
					return
				}
				if err := mb.Send(context.Background(), msg); err != nil {
					p.logger.Debug("event source detached", "error", err)
					return
				}
			case <-m.Done():
				return
			}
		}
	}()
	return nil
}

// Destroy closes the mailbox and releases its name. Safe to call more than
// once and after the engine has terminated; a running engine stops with a
// transport error.
func (p *Pilot) Destroy() error {
	p.mu.Lock()
	mb := p.mb
	p.mu.Unlock()
	if mb == nil {
		return nil
	}
	return p.namespace.Release(mb)
}

// Wait blocks until the engine exits and returns why: nil after a stop
// request, a *core.TransportError otherwise.
func (p *Pilot) Wait(ctx context.Context) error {
	m, _ := p.handles()
	if m == nil {
		return ErrNotCreated
	}
	return m.Wait(ctx)
}

// Done is closed when the engine exits. Nil before Create.
func (p *Pilot) Done() <-chan struct{} {
	m, _ := p.handles()
	if m == nil {
		return nil
	}
	return m.Done()
}

// ID returns the pilot ID.
func (p *Pilot) ID() string { return p.id }

// Name returns the mailbox name.
func (p *Pilot) Name() string { return p.name }

// State returns the engine state; Idle before Create.
func (p *Pilot) State() primitives.State {
	if m, _ := p.handles(); m != nil {
		return m.State()
	}
	return primitives.StateIdle
}

// Velocity returns the committed velocity.
func (p *Pilot) Velocity() primitives.VelocityVector {
	if m, _ := p.handles(); m != nil {
		return m.Velocity()
	}
	return primitives.ZeroVelocity()
}

// Snapshot returns the engine's runtime state.
func (p *Pilot) Snapshot() core.Snapshot {
	if m, _ := p.handles(); m != nil {
		return m.Snapshot()
	}
	return core.Snapshot{PilotID: p.id, State: primitives.StateIdle, Velocity: primitives.ZeroVelocity()}
}

func (p *Pilot) handles() (*core.Machine, *mailbox.Mailbox) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.machine, p.mb
}

func (p *Pilot) send(ctx context.Context, msg primitives.Message) error {
	_, mb := p.handles()
	if mb == nil {
		return ErrNotCreated
	}
	if err := mb.Send(ctx, msg); err != nil {
		if errors.Is(err, mailbox.ErrClosed) {
			return &core.TransportError{Op: "send " + msg.Event.String(), Err: err}
		}
		return fmt.Errorf("send %s: %w", msg.Event, err)
	}
	return nil
}
