// Tests for ChannelPublisher delivery and Machine integration.
package production

import (
	"context"
	"testing"
	"time"

	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/mailbox"
	"github.com/comalice/commando/internal/primitives"
	"github.com/comalice/commando/testutil"
)

func TestChannelPublisher_DropsWhenFull(t *testing.T) {
	ch := make(chan core.TransitionRecord, 1)
	p := NewChannelPublisher(ch)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		if err := p.Publish(ctx, core.TransitionRecord{Sequence: i}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if got := (<-ch).Sequence; got != 1 {
		t.Errorf("first record sequence = %d, want 1", got)
	}
	if p.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", p.Dropped())
	}

	_ = p.Close()
	_ = p.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if err := p.Publish(ctx, core.TransitionRecord{}); err != nil {
		t.Errorf("Publish after Close = %v, want nil", err)
	}
}

func TestChannelPublisher_WithMachine(t *testing.T) {
	ch := make(chan core.TransitionRecord, 16)
	m := core.NewMachine(core.WithID("rover"), core.WithPublisher(NewChannelPublisher(ch)))
	mb := mailbox.New(4)
	ctx := context.Background()
	if err := m.Launch(ctx, mb, testutil.NewFakeActuator()); err != nil {
		t.Fatal(err)
	}
	_ = mb.Send(ctx, primitives.NewMessage(primitives.EventStopRequested))

	var got []core.TransitionRecord
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case r, ok := <-ch:
			if !ok {
				done = true
				break
			}
			got = append(got, r)
		case <-timeout:
			t.Fatal("publisher channel not closed after termination")
		}
	}

	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	r := got[0]
	if r.From != primitives.StateIdle || r.To != primitives.StateTerminated || r.Action != primitives.ActionStop {
		t.Errorf("record = %+v", r)
	}
	if r.PilotID != "rover" || r.Sequence != 1 {
		t.Errorf("record identity = %q/%d", r.PilotID, r.Sequence)
	}
}
