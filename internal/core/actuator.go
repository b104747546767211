package core

import "context"

// Actuator is the robot capability driven by the engine: differential wheel
// control plus speed and bump sensing. Calls are made only from the engine
// goroutine and may block, but must not call back into the pilot.
type Actuator interface {
	Open(ctx context.Context) error
	SetWheelSpeeds(ctx context.Context, left, right int) error
	CurrentSpeed(ctx context.Context) (int, error)
	HasBumped(ctx context.Context) (bool, error)
	Close() error
}
