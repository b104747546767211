package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/commando/internal/mailbox"
	"github.com/comalice/commando/internal/primitives"
	"github.com/comalice/commando/testutil"
)

// harness drives a machine synchronously: no goroutine, one step at a time.
type harness struct {
	t   *testing.T
	m   *Machine
	mb  *mailbox.Mailbox
	act *testutil.FakeActuator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	h := &harness{
		t:   t,
		m:   NewMachine(opts...),
		mb:  mailbox.New(4),
		act: testutil.NewFakeActuator(),
	}
	h.m.bind(h.mb, h.act)
	return h
}

func (h *harness) send(msg primitives.Message) {
	h.t.Helper()
	require.NoError(h.t, h.mb.Send(context.Background(), msg))
}

// settle processes queued messages, follow-ups included, until the mailbox
// is empty or the machine terminates.
func (h *harness) settle() {
	h.t.Helper()
	ctx := context.Background()
	for h.mb.Len() > 0 && !h.m.State().Terminal() {
		msg, err := h.mb.Receive(ctx)
		require.NoError(h.t, err)
		require.NoError(h.t, h.m.step(ctx, msg))
	}
}

func velocity(d primitives.Direction, p int) primitives.Message {
	return primitives.Message{
		Event:    primitives.EventVelocityRequested,
		Velocity: primitives.VelocityVector{Direction: d, Power: p},
	}
}

func TestMachine_InitialState(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, primitives.StateIdle, m.State())
	assert.Equal(t, primitives.ZeroVelocity(), m.Velocity())
}

func TestMachine_UnlistedEventsLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	for _, s := range primitives.AllStates() {
		for _, e := range primitives.AllEvents() {
			if _, ok := DefaultTable().Lookup(s, e); ok {
				continue
			}
			h := newHarness(t)
			h.m.state = s
			h.m.current = primitives.VelocityVector{Direction: primitives.Left, Power: 7}
			h.m.pending = h.m.current

			require.NoError(t, h.m.step(ctx, primitives.NewMessage(e)))
			assert.Equal(t, s, h.m.State(), "(%s, %s)", s, e)
			assert.Equal(t, primitives.VelocityVector{Direction: primitives.Left, Power: 7}, h.m.Velocity())
			assert.Empty(t, h.act.Commands())
			assert.Equal(t, 0, h.mb.Len(), "no follow-up for (%s, %s)", s, e)
		}
	}
}

func TestMachine_VelocityFromIdle(t *testing.T) {
	h := newHarness(t)
	h.send(velocity(primitives.Forward, 50))

	ctx := context.Background()
	msg, err := h.mb.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, h.m.step(ctx, msg))
	assert.Equal(t, primitives.StateCheckingIdleVelocity, h.m.State())
	assert.Equal(t, 1, h.mb.Len(), "probe should post a follow-up")

	h.settle()
	assert.Equal(t, primitives.StateRunning, h.m.State())
	assert.Equal(t, primitives.VelocityVector{Direction: primitives.Forward, Power: 50}, h.m.Velocity())
	assert.Equal(t, []testutil.WheelCommand{{Left: 50, Right: 50}}, h.act.Commands())
}

func TestMachine_ZeroVelocityIdempotent(t *testing.T) {
	h := newHarness(t)
	h.send(velocity(primitives.Forward, 0))
	h.settle()

	assert.Equal(t, primitives.StateIdle, h.m.State())
	assert.Equal(t, primitives.ZeroVelocity(), h.m.Velocity())
}

func TestMachine_RunningToIdleOnZero(t *testing.T) {
	h := newHarness(t)
	h.send(velocity(primitives.Left, 20))
	h.settle()
	require.Equal(t, primitives.StateRunning, h.m.State())

	h.send(velocity(primitives.Right, 0))
	h.settle()
	assert.Equal(t, primitives.StateIdle, h.m.State())
	assert.Equal(t, []testutil.WheelCommand{{Left: -20, Right: 20}, {Left: 0, Right: 0}}, h.act.Commands())
}

func TestMachine_BackwardSafety(t *testing.T) {
	h := newHarness(t)
	h.act.SetSpeed(35)

	h.send(velocity(primitives.Backward, 30))
	h.settle()
	last, _ := h.act.Last()
	assert.Equal(t, testutil.WheelCommand{Left: 0, Right: 0}, last)

	h.act.SetSpeed(0)
	h.send(velocity(primitives.Backward, 30))
	h.settle()
	last, _ = h.act.Last()
	assert.Equal(t, testutil.WheelCommand{Left: -30, Right: -30}, last)
	assert.Equal(t, primitives.StateRunning, h.m.State())
}

func TestMachine_BumpRoundTrip(t *testing.T) {
	t.Run("bumped", func(t *testing.T) {
		h := newHarness(t)
		h.send(velocity(primitives.Forward, 40))
		h.settle()

		h.act.SetBumped(true)
		h.send(primitives.NewMessage(primitives.EventCheckRequested))
		h.settle()

		assert.Equal(t, primitives.StateIdle, h.m.State())
		assert.Equal(t, primitives.ZeroVelocity(), h.m.Velocity())
		last, _ := h.act.Last()
		assert.Equal(t, testutil.WheelCommand{Left: 0, Right: 0}, last)
	})

	t.Run("not bumped", func(t *testing.T) {
		h := newHarness(t)
		h.send(velocity(primitives.Forward, 40))
		h.settle()

		h.send(primitives.NewMessage(primitives.EventCheckRequested))
		h.settle()

		assert.Equal(t, primitives.StateRunning, h.m.State())
		assert.Equal(t, primitives.VelocityVector{Direction: primitives.Forward, Power: 40}, h.m.Velocity())
		assert.Len(t, h.act.Commands(), 2)
	})

	t.Run("sensor failure counts as bump", func(t *testing.T) {
		h := newHarness(t)
		h.send(velocity(primitives.Forward, 40))
		h.settle()

		h.act.BumpErr = errors.New("sensor offline")
		h.send(primitives.NewMessage(primitives.EventCheckRequested))
		h.settle()
		assert.Equal(t, primitives.StateIdle, h.m.State())
	})
}

func TestMachine_CheckIgnoredWhileIdle(t *testing.T) {
	h := newHarness(t)
	h.act.SetBumped(true)
	h.send(primitives.NewMessage(primitives.EventCheckRequested))
	h.settle()
	assert.Equal(t, primitives.StateIdle, h.m.State())
	assert.Empty(t, h.act.Commands())
}

func TestMachine_StopDoesNotTouchWheels(t *testing.T) {
	h := newHarness(t)
	h.send(velocity(primitives.Forward, 40))
	h.settle()

	h.send(primitives.NewMessage(primitives.EventStopRequested))
	h.settle()
	assert.Equal(t, primitives.StateTerminated, h.m.State())
	assert.Equal(t, primitives.ZeroVelocity(), h.m.Velocity())
	assert.Equal(t, []testutil.WheelCommand{{Left: 40, Right: 40}}, h.act.Commands())
}

func TestMachine_HaltStops(t *testing.T) {
	t.Run("emergency message", func(t *testing.T) {
		h := newHarness(t)
		h.send(velocity(primitives.Forward, 40))
		h.settle()

		h.send(primitives.Message{Event: primitives.EventStopRequested, Halt: true})
		h.settle()
		last, _ := h.act.Last()
		assert.Equal(t, testutil.WheelCommand{Left: 0, Right: 0}, last)
	})

	t.Run("halt on stop option", func(t *testing.T) {
		h := newHarness(t, WithHaltOnStop(true))
		h.send(velocity(primitives.Forward, 40))
		h.settle()

		h.send(primitives.NewMessage(primitives.EventStopRequested))
		h.settle()
		assert.Len(t, h.act.Commands(), 2)
	})
}

func TestMachine_CancelledVelocityResolvesToZero(t *testing.T) {
	h := newHarness(t)
	h.send(velocity(primitives.Forward, 40))
	h.settle()
	require.Equal(t, primitives.StateRunning, h.m.State())

	stale := velocity(primitives.Forward, 80)
	stale.Epoch = h.m.Epoch()
	h.send(stale)
	epoch := h.m.CancelVelocityRequests()
	assert.Equal(t, stale.Epoch+1, epoch)
	h.settle()

	assert.Equal(t, primitives.StateIdle, h.m.State())
	assert.Equal(t, primitives.ZeroVelocity(), h.m.Velocity())
	assert.Equal(t, []testutil.WheelCommand{{Left: 40, Right: 40}, {Left: 0, Right: 0}}, h.act.Commands())

	fresh := velocity(primitives.Left, 10)
	fresh.Epoch = h.m.Epoch()
	h.send(fresh)
	h.settle()
	last, _ := h.act.Last()
	assert.Equal(t, testutil.WheelCommand{Left: -10, Right: 10}, last, "requests of the current epoch still apply")
}

func TestMachine_ActuatorFailureStillCommits(t *testing.T) {
	h := newHarness(t)
	h.act.SetErr = errors.New("driver offline")
	h.send(velocity(primitives.Forward, 40))
	h.settle()
	assert.Equal(t, primitives.StateRunning, h.m.State())
}

// recordingPublisher collects records for assertions.
type recordingPublisher struct {
	mu      sync.Mutex
	records []TransitionRecord
	closed  bool
}

func (p *recordingPublisher) Publish(_ context.Context, r TransitionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) path() []primitives.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []primitives.State
	for _, r := range p.records {
		out = append(out, r.To)
	}
	return out
}

type memoryPersister struct {
	mu    sync.Mutex
	saved []Snapshot
}

func (p *memoryPersister) Save(_ context.Context, s Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, s)
	return nil
}

func (p *memoryPersister) Load(_ context.Context, id string) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saved) == 0 {
		return Snapshot{}, errors.New("empty")
	}
	return p.saved[len(p.saved)-1], nil
}

func TestMachine_LaunchScenario(t *testing.T) {
	pub := &recordingPublisher{}
	store := &memoryPersister{}
	m := NewMachine(WithID("scenario"), WithPublisher(pub), WithPersister(store))
	mb := mailbox.New(mailbox.DefaultCapacity)
	act := testutil.NewFakeActuator()
	ctx := context.Background()

	require.NoError(t, m.Launch(ctx, mb, act))
	assert.True(t, act.Opened())

	require.NoError(t, mb.Send(ctx, velocity(primitives.Forward, 50)))
	testutil.WaitForState(t, m, primitives.StateRunning, time.Second)
	last, _ := act.Last()
	assert.Equal(t, testutil.WheelCommand{Left: 50, Right: 50}, last)

	act.SetBumped(true)
	require.NoError(t, mb.Send(ctx, primitives.NewMessage(primitives.EventCheckRequested)))
	testutil.WaitForState(t, m, primitives.StateIdle, time.Second)

	require.NoError(t, mb.Send(ctx, primitives.NewMessage(primitives.EventStopRequested)))
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, m.Wait(waitCtx))

	assert.Equal(t, primitives.StateTerminated, m.State())
	assert.Equal(t, []testutil.WheelCommand{{Left: 50, Right: 50}, {Left: 0, Right: 0}}, act.Commands())
	assert.True(t, act.Closed())
	assert.True(t, pub.closed)
	assert.Equal(t, []primitives.State{
		primitives.StateCheckingIdleVelocity,
		primitives.StateRunning,
		primitives.StateCheckingBump,
		primitives.StateIdle,
		primitives.StateTerminated,
	}, pub.path())

	snap, err := store.Load(ctx, "scenario")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Sequence)
	assert.Equal(t, primitives.StateTerminated, snap.State)
	assert.Equal(t, primitives.EventStopRequested, snap.LastEvent)
	assert.Equal(t, "scenario", snap.PilotID)

	assert.ErrorIs(t, mb.Send(ctx, velocity(primitives.Forward, 1)), mailbox.ErrClosed)
}

func TestMachine_NoProcessingAfterStop(t *testing.T) {
	m := NewMachine()
	mb := mailbox.New(8)
	act := testutil.NewFakeActuator()
	ctx := context.Background()

	// Queue everything before the loop starts so ordering is deterministic.
	require.NoError(t, mb.Send(ctx, primitives.NewMessage(primitives.EventStopRequested)))
	require.NoError(t, mb.Send(ctx, velocity(primitives.Forward, 80)))
	require.NoError(t, mb.Send(ctx, velocity(primitives.Left, 10)))

	require.NoError(t, m.Launch(ctx, mb, act))
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, m.Wait(waitCtx))

	assert.Equal(t, primitives.StateTerminated, m.State())
	assert.Empty(t, act.Commands())
}

func TestMachine_LaunchErrors(t *testing.T) {
	ctx := context.Background()

	act := testutil.NewFakeActuator()
	act.OpenErr = errors.New("no robot")
	m := NewMachine()
	err := m.Launch(ctx, mailbox.New(1), act)
	assert.ErrorIs(t, err, ErrSetup)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "open actuator", se.Op)

	act.OpenErr = nil
	mb := mailbox.New(1)
	require.NoError(t, m.Launch(ctx, mb, act), "a failed launch may be retried")
	err = m.Launch(ctx, mb, act)
	assert.ErrorIs(t, err, ErrAlreadyLaunched)

	require.NoError(t, mb.Send(ctx, primitives.NewMessage(primitives.EventStopRequested)))
	require.NoError(t, m.Wait(ctx))
}

func TestMachine_TransportFailure(t *testing.T) {
	m := NewMachine()
	mb := mailbox.New(1)
	act := testutil.NewFakeActuator()
	ctx := context.Background()
	require.NoError(t, m.Launch(ctx, mb, act))

	// Tear the mailbox down underneath the running engine.
	require.NoError(t, mb.Close())

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err := m.Wait(waitCtx)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, mailbox.ErrClosed)
	assert.ErrorIs(t, m.Err(), ErrTransport)
	assert.True(t, act.Closed())
	assert.Equal(t, primitives.StateIdle, m.State())
}

func TestMachine_WaitHonoursContext(t *testing.T) {
	m := NewMachine()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, m.Err())
}

func TestMachine_VisualizeWithoutVisualizer(t *testing.T) {
	assert.Contains(t, NewMachine().Visualize(), "No visualizer configured")
}

func TestMachine_WithActionHandler(t *testing.T) {
	var stops int
	h := newHarness(t, WithActionHandler(primitives.ActionStop, func(ctx context.Context, x *Execution) error {
		stops++
		return x.Actuator().SetWheelSpeeds(ctx, 0, 0)
	}))
	h.send(primitives.NewMessage(primitives.EventStopRequested))
	h.settle()

	assert.Equal(t, 1, stops)
	assert.Equal(t, []testutil.WheelCommand{{Left: 0, Right: 0}}, h.act.Commands())
	assert.Equal(t, primitives.StateTerminated, h.m.State())
}
