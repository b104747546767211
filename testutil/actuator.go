// Package testutil provides test doubles shared by the pilot test suites.
package testutil

import (
	"context"
	"sync"
)

// WheelCommand is one recorded SetWheelSpeeds call.
type WheelCommand struct {
	Left  int
	Right int
}

// FakeActuator is an in-memory actuator that records wheel commands and
// serves scripted sensor readings. Safe for concurrent use.
type FakeActuator struct {
	mu       sync.Mutex
	commands []WheelCommand
	speed    int
	bumps    []bool
	bumped   bool
	opened   bool
	closed   bool
	before   func(left, right int)

	OpenErr  error
	SetErr   error
	SpeedErr error
	BumpErr  error
}

// NewFakeActuator returns an actuator at rest that never reports a bump.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

func (f *FakeActuator) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.opened = true
	return nil
}

func (f *FakeActuator) SetWheelSpeeds(_ context.Context, left, right int) error {
	f.mu.Lock()
	before := f.before
	f.mu.Unlock()
	if before != nil {
		before(left, right)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetErr != nil {
		return f.SetErr
	}
	f.commands = append(f.commands, WheelCommand{Left: left, Right: right})
	return nil
}

func (f *FakeActuator) CurrentSpeed(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speed, f.SpeedErr
}

// HasBumped returns the next scripted reading, or the sticky value set by
// SetBumped once the script is exhausted.
func (f *FakeActuator) HasBumped(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BumpErr != nil {
		return false, f.BumpErr
	}
	if len(f.bumps) > 0 {
		b := f.bumps[0]
		f.bumps = f.bumps[1:]
		return b, nil
	}
	return f.bumped, nil
}

func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetSpeed sets the measured speed reported by CurrentSpeed.
func (f *FakeActuator) SetSpeed(v int) {
	f.mu.Lock()
	f.speed = v
	f.mu.Unlock()
}

// BeforeSetWheels installs fn to run at the start of every SetWheelSpeeds
// call, outside the actuator lock. Tests use it to hold the engine inside
// an action.
func (f *FakeActuator) BeforeSetWheels(fn func(left, right int)) {
	f.mu.Lock()
	f.before = fn
	f.mu.Unlock()
}

// SetBumped sets the reading returned when no scripted readings remain.
func (f *FakeActuator) SetBumped(b bool) {
	f.mu.Lock()
	f.bumped = b
	f.mu.Unlock()
}

// ScriptBumps queues readings returned by successive HasBumped calls.
func (f *FakeActuator) ScriptBumps(readings ...bool) {
	f.mu.Lock()
	f.bumps = append(f.bumps, readings...)
	f.mu.Unlock()
}

// Commands returns a copy of every recorded wheel command.
func (f *FakeActuator) Commands() []WheelCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WheelCommand(nil), f.commands...)
}

// Last returns the most recent wheel command.
func (f *FakeActuator) Last() (WheelCommand, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return WheelCommand{}, false
	}
	return f.commands[len(f.commands)-1], true
}

func (f *FakeActuator) Opened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *FakeActuator) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
