package core

import (
	"context"
	"fmt"

	"github.com/comalice/commando/internal/primitives"
)

// WheelSpeeds is a concrete differential wheel command.
type WheelSpeeds struct {
	Left  int `json:"left" yaml:"left"`
	Right int `json:"right" yaml:"right"`
}

// Resolve maps a symbolic velocity and the measured speed to wheel speeds.
//
// Backward motion is only commanded from rest: while the robot still moves
// the result is a full stop, and the same request must be repeated once the
// measured speed reads zero. Unknown directions resolve to a stop.
func Resolve(v primitives.VelocityVector, measured int) WheelSpeeds {
	p := v.Power
	switch v.Direction {
	case primitives.Left:
		return WheelSpeeds{Left: -p, Right: p}
	case primitives.Right:
		return WheelSpeeds{Left: p, Right: -p}
	case primitives.Forward:
		return WheelSpeeds{Left: p, Right: p}
	case primitives.Backward:
		if measured != 0 {
			return WheelSpeeds{}
		}
		return WheelSpeeds{Left: -p, Right: -p}
	default:
		return WheelSpeeds{}
	}
}

// ApplyVelocity resolves v against the actuator and commands the wheels.
// The speed sensor is only read for backward motion; a failed read is
// treated as "still moving".
func ApplyVelocity(ctx context.Context, a Actuator, v primitives.VelocityVector) (WheelSpeeds, error) {
	var measured int
	var readErr error
	if v.Direction == primitives.Backward {
		measured, readErr = a.CurrentSpeed(ctx)
		if readErr != nil {
			measured = 1
			readErr = fmt.Errorf("read speed: %w", readErr)
		}
	}

	ws := Resolve(v, measured)
	if err := a.SetWheelSpeeds(ctx, ws.Left, ws.Right); err != nil {
		return ws, fmt.Errorf("set wheel speeds %d/%d: %w", ws.Left, ws.Right, err)
	}
	return ws, readErr
}
