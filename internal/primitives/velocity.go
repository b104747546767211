package primitives

import (
	"fmt"
	"strings"
)

// Direction is the symbolic heading of a motion command.
type Direction int

const (
	Left Direction = iota
	Right
	Forward
	Backward
)

var directionNames = []string{"left", "right", "forward", "backward"}

func (d Direction) String() string { return nameOf("Direction", directionNames, int(d)) }

// Valid reports whether d is one of the four declared directions.
func (d Direction) Valid() bool { return d >= 0 && int(d) < len(directionNames) }

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection parses a direction name, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	i, err := indexOf("direction", directionNames, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return 0, err
	}
	return Direction(i), nil
}

// VelocityVector is a symbolic motion command: a direction and a
// non-negative power.
type VelocityVector struct {
	Direction Direction `json:"direction" yaml:"direction"`
	Power     int       `json:"power" yaml:"power"`
}

// ZeroVelocity is the rest vector {Forward, 0}.
func ZeroVelocity() VelocityVector {
	return VelocityVector{Direction: Forward, Power: 0}
}

// IsZero reports whether v commands no motion.
func (v VelocityVector) IsZero() bool { return v.Power == 0 }

// VelocityError names the field of a VelocityVector that failed validation.
type VelocityError struct {
	Field  string
	Value  int
	Reason string
}

func (e *VelocityError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Field, e.Value, e.Reason)
}

// Validate rejects unknown directions and negative power with a
// *VelocityError.
func (v VelocityVector) Validate() error {
	if !v.Direction.Valid() {
		return &VelocityError{Field: "direction", Value: int(v.Direction), Reason: "unknown direction"}
	}
	if v.Power < 0 {
		return &VelocityError{Field: "power", Value: v.Power, Reason: "must be non-negative"}
	}
	return nil
}

func (v VelocityVector) String() string {
	return fmt.Sprintf("{%s %d}", v.Direction, v.Power)
}
