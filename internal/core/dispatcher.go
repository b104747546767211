package core

import (
	"context"
	"fmt"

	"github.com/comalice/commando/internal/logging"
	"github.com/comalice/commando/internal/primitives"
)

// ActionRunner executes the action of a firing transition.
type ActionRunner interface {
	Run(ctx context.Context, action primitives.Action, x *Execution) error
}

// ActionFunc implements one action.
type ActionFunc func(ctx context.Context, x *Execution) error

// Execution is the view of the engine an action runs against. It is only
// valid for the duration of the Run call and only on the engine goroutine.
type Execution struct {
	m *Machine

	// Message is the message that fired the transition.
	Message primitives.Message
	From    primitives.State
	To      primitives.State
}

// Current returns the committed velocity.
func (x *Execution) Current() primitives.VelocityVector { return x.m.Velocity() }

// Pending returns the velocity awaiting commit.
func (x *Execution) Pending() primitives.VelocityVector { return x.m.Pending() }

// SetPending replaces the velocity awaiting commit.
func (x *Execution) SetPending(v primitives.VelocityVector) {
	x.m.mu.Lock()
	x.m.pending = v
	x.m.mu.Unlock()
}

// Commit makes the pending velocity current and returns it.
func (x *Execution) Commit() primitives.VelocityVector {
	x.m.mu.Lock()
	defer x.m.mu.Unlock()
	x.m.current = x.m.pending
	return x.m.current
}

// ResetVelocity zeroes both the current and the pending velocity.
func (x *Execution) ResetVelocity() {
	x.m.mu.Lock()
	x.m.current = primitives.ZeroVelocity()
	x.m.pending = primitives.ZeroVelocity()
	x.m.mu.Unlock()
}

// Actuator returns the robot capability.
func (x *Execution) Actuator() Actuator { return x.m.actuator }

// Post enqueues a follow-up event on the engine's own mailbox.
func (x *Execution) Post(e primitives.Event) error {
	return x.m.post(e)
}

// HaltOnStop reports whether Stop must also zero the wheels.
func (x *Execution) HaltOnStop() bool { return x.m.haltOnStop || x.Message.Halt }

// Logger returns the engine logger.
func (x *Execution) Logger() *logging.Logger { return x.m.logger }

// Dispatcher is the default ActionRunner: one ActionFunc per action.
type Dispatcher struct {
	handlers map[primitives.Action]ActionFunc
}

// DefaultHandlers returns the built-in action implementations.
func DefaultHandlers() map[primitives.Action]ActionFunc {
	return map[primitives.Action]ActionFunc{
		primitives.ActionNoOp:          noOp,
		primitives.ActionApplyVelocity: applyVelocity,
		primitives.ActionCheckBump:     checkBump,
		primitives.ActionStop:          stop,
	}
}

// NewDispatcher builds a dispatcher from handlers and checks that every
// declared action has one.
func NewDispatcher(handlers map[primitives.Action]ActionFunc) (*Dispatcher, error) {
	d := &Dispatcher{handlers: make(map[primitives.Action]ActionFunc, len(handlers))}
	for a, h := range handlers {
		if !a.Valid() {
			return nil, fmt.Errorf("handler for undeclared action %s", a)
		}
		if h == nil {
			return nil, fmt.Errorf("nil handler for action %s", a)
		}
		d.handlers[a] = h
	}
	for _, a := range primitives.AllActions() {
		if _, ok := d.handlers[a]; !ok {
			return nil, fmt.Errorf("no handler for action %s", a)
		}
	}
	return d, nil
}

// Run executes the handler registered for action.
func (d *Dispatcher) Run(ctx context.Context, action primitives.Action, x *Execution) error {
	h, ok := d.handlers[action]
	if !ok {
		return fmt.Errorf("no handler for action %s", action)
	}
	return h(ctx, x)
}

func noOp(context.Context, *Execution) error { return nil }

func applyVelocity(ctx context.Context, x *Execution) error {
	v := x.Commit()
	ws, err := ApplyVelocity(ctx, x.Actuator(), v)
	x.Logger().Debug("velocity applied", "velocity", v.String(), "left", ws.Left, "right", ws.Right)
	return err
}

// checkBump reads the bump sensor and posts the result. A failed read counts
// as a bump.
func checkBump(ctx context.Context, x *Execution) error {
	bumped, err := x.Actuator().HasBumped(ctx)
	if err != nil {
		x.Logger().Warn("bump sensor read failed, assuming bumped", "error", err)
		bumped = true
	}
	if bumped {
		x.SetPending(primitives.ZeroVelocity())
		return x.Post(primitives.EventBumped)
	}
	x.SetPending(x.Current())
	return x.Post(primitives.EventNotBumped)
}

func stop(ctx context.Context, x *Execution) error {
	x.ResetVelocity()
	if !x.HaltOnStop() {
		return nil
	}
	if err := x.Actuator().SetWheelSpeeds(ctx, 0, 0); err != nil {
		return fmt.Errorf("halt wheels: %w", err)
	}
	return nil
}
