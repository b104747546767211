package robot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/mailbox"
	"github.com/comalice/commando/internal/primitives"
	"github.com/comalice/commando/testutil"
)

var _ core.Actuator = (*Simulator)(nil)

func TestSimulator_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()

	assert.ErrorIs(t, s.SetWheelSpeeds(ctx, 1, 1), ErrNotOpen)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.SetWheelSpeeds(ctx, 30, -40))

	speed, err := s.CurrentSpeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, speed)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	l, r := s.Wheels()
	assert.Zero(t, l)
	assert.Zero(t, r)
	assert.ErrorIs(t, s.Open(ctx), ErrClosed)
	_, err = s.HasBumped(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSimulator_ClampsPower(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator(WithMaxPower(60))
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.SetWheelSpeeds(ctx, 100, -75))

	l, r := s.Wheels()
	assert.Equal(t, 60, l)
	assert.Equal(t, -60, r)
}

func TestSimulator_Bumps(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator(WithBumpEvery(3))
	require.NoError(t, s.Open(ctx))

	var got []bool
	for i := 0; i < 6; i++ {
		b, err := s.HasBumped(ctx)
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, []bool{false, false, true, false, false, true}, got)

	s.TriggerBump()
	b, _ := s.HasBumped(ctx)
	assert.True(t, b)
	b, _ = s.HasBumped(ctx)
	assert.False(t, b, "a triggered bump is consumed")
}

func TestSimulator_CancelledContext(t *testing.T) {
	s := NewSimulator()
	require.NoError(t, s.Open(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SetWheelSpeeds(ctx, 1, 1), context.Canceled)
}

func TestSimulator_DrivesMachine(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	m := core.NewMachine()
	mb := mailbox.New(4)
	require.NoError(t, m.Launch(ctx, mb, s))

	send := func(d primitives.Direction, p int) {
		require.NoError(t, mb.Send(ctx, primitives.Message{
			Event:    primitives.EventVelocityRequested,
			Velocity: primitives.VelocityVector{Direction: d, Power: p},
		}))
	}

	send(primitives.Forward, 50)
	testutil.WaitForState(t, m, primitives.StateRunning, time.Second)

	// Still moving forward: the first backward request only stops the robot.
	send(primitives.Backward, 30)
	require.Eventually(t, func() bool {
		l, r := s.Wheels()
		return l == 0 && r == 0
	}, time.Second, time.Millisecond)

	send(primitives.Backward, 30)
	require.Eventually(t, func() bool {
		l, r := s.Wheels()
		return l == -30 && r == -30
	}, time.Second, time.Millisecond)

	s.TriggerBump()
	require.NoError(t, mb.Send(ctx, primitives.NewMessage(primitives.EventCheckRequested)))
	testutil.WaitForState(t, m, primitives.StateIdle, time.Second)
	l, r := s.Wheels()
	assert.Equal(t, [2]int{0, 0}, [2]int{l, r})

	require.NoError(t, mb.Send(ctx, primitives.NewMessage(primitives.EventStopRequested)))
	require.NoError(t, m.Wait(ctx))
}
