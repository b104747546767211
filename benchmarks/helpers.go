// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/mailbox"
	"github.com/comalice/commando/internal/primitives"
)

// CountingActuator accepts every command and counts wheel updates.
type CountingActuator struct {
	applied atomic.Int64
}

func (a *CountingActuator) Open(context.Context) error { return nil }

func (a *CountingActuator) SetWheelSpeeds(context.Context, int, int) error {
	a.applied.Add(1)
	return nil
}

func (a *CountingActuator) CurrentSpeed(context.Context) (int, error) { return 0, nil }

func (a *CountingActuator) HasBumped(context.Context) (bool, error) { return false, nil }

func (a *CountingActuator) Close() error { return nil }

// Applied returns the number of wheel updates so far.
func (a *CountingActuator) Applied() int64 { return a.applied.Load() }

// LaunchMachine starts an engine on a fresh mailbox and a CountingActuator.
// The engine is stopped when the benchmark ends.
func LaunchMachine(b *testing.B, capacity int, opts ...core.Option) (*core.Machine, *mailbox.Mailbox, *CountingActuator) {
	b.Helper()
	m := core.NewMachine(opts...)
	mb := mailbox.New(capacity)
	act := &CountingActuator{}
	if err := m.Launch(context.Background(), mb, act); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		_ = mb.Send(context.Background(), primitives.NewMessage(primitives.EventStopRequested))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Wait(ctx)
	})
	return m, mb, act
}

// VelocityMessage builds a velocity request.
func VelocityMessage(d primitives.Direction, power int) primitives.Message {
	return primitives.Message{
		Event:    primitives.EventVelocityRequested,
		Velocity: primitives.VelocityVector{Direction: d, Power: power},
	}
}

// WaitApplied blocks until act has seen n wheel updates.
func WaitApplied(b *testing.B, act *CountingActuator, n int64) {
	b.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for act.Applied() < n {
		if time.Now().After(deadline) {
			b.Fatalf("timeout waiting for processing: %d / %d", act.Applied(), n)
		}
		time.Sleep(time.Millisecond)
	}
}
