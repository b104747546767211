// Package robot provides an in-memory differential-drive robot that
// satisfies core.Actuator. It backs the CLI and end-to-end tests when no
// hardware is attached.
package robot

import (
	"context"
	"errors"
	"sync"

	"github.com/comalice/commando/internal/logging"
)

// DefaultMaxPower is the wheel power limit when none is configured.
const DefaultMaxPower = 100

var (
	// ErrNotOpen is returned by wheel and sensor calls outside Open/Close.
	ErrNotOpen = errors.New("robot not open")
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("robot closed")
)

// Simulator is a two-wheel robot. Wheel commands are clamped to the power
// limit and take effect immediately; the measured speed is the faster wheel.
type Simulator struct {
	mu        sync.Mutex
	maxPower  int
	bumpEvery int
	logger    *logging.Logger

	open    bool
	closed  bool
	left    int
	right   int
	checks  int
	pending bool
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithMaxPower sets the absolute wheel power limit.
func WithMaxPower(p int) Option {
	return func(s *Simulator) {
		if p > 0 {
			s.maxPower = p
		}
	}
}

// WithBumpEvery makes every n-th bump check report a collision. Zero
// disables scripted bumps.
func WithBumpEvery(n int) Option {
	return func(s *Simulator) {
		if n >= 0 {
			s.bumpEvery = n
		}
	}
}

// WithLogger sets the simulator logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSimulator returns a robot at rest.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		maxPower: DefaultMaxPower,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("robot")
	return s
}

func (s *Simulator) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.open = true
	s.logger.Info("robot online", "max_power", s.maxPower, "bump_every", s.bumpEvery)
	return nil
}

func (s *Simulator) SetWheelSpeeds(ctx context.Context, left, right int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	s.left, s.right = s.clamp(left), s.clamp(right)
	s.logger.Debug("wheels set", "left", s.left, "right", s.right)
	return nil
}

func (s *Simulator) CurrentSpeed(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, ErrNotOpen
	}
	return max(abs(s.left), abs(s.right)), nil
}

// HasBumped reports a collision triggered with TriggerBump or due under
// WithBumpEvery. A reported bump is consumed.
func (s *Simulator) HasBumped(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false, ErrNotOpen
	}
	s.checks++
	bumped := s.pending || (s.bumpEvery > 0 && s.checks%s.bumpEvery == 0)
	s.pending = false
	if bumped {
		s.logger.Info("bump detected", "check", s.checks)
	}
	return bumped, nil
}

// Close zeroes the wheels and takes the robot offline. Safe to call more
// than once.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.open, s.closed = false, true
	s.left, s.right = 0, 0
	s.logger.Info("robot offline")
	return nil
}

// TriggerBump makes the next bump check report a collision.
func (s *Simulator) TriggerBump() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
}

// Wheels returns the current wheel powers.
func (s *Simulator) Wheels() (left, right int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left, s.right
}

func (s *Simulator) clamp(p int) int {
	return max(-s.maxPower, min(s.maxPower, p))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
