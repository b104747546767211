package core

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/comalice/commando/internal/primitives"
)

// Transition is the outcome of a table lookup.
type Transition struct {
	Next   primitives.State  `json:"next" yaml:"next"`
	Action primitives.Action `json:"action" yaml:"action"`
}

// Entry is one row of a transition table.
type Entry struct {
	From   primitives.State  `json:"from" yaml:"from"`
	Event  primitives.Event  `json:"event" yaml:"event"`
	Next   primitives.State  `json:"next" yaml:"next"`
	Action primitives.Action `json:"action" yaml:"action"`
}

type key struct {
	state primitives.State
	event primitives.Event
}

// Table maps (state, event) to a Transition. It is immutable once built;
// a missing pair means the event is ignored in that state.
type Table struct {
	entries map[key]Transition
	version string
}

// DefaultEntries returns the pilot transition table.
func DefaultEntries() []Entry {
	return []Entry{
		{primitives.StateIdle, primitives.EventVelocityRequested, primitives.StateCheckingIdleVelocity, primitives.ActionNoOp},
		{primitives.StateIdle, primitives.EventStopRequested, primitives.StateTerminated, primitives.ActionStop},
		{primitives.StateRunning, primitives.EventVelocityRequested, primitives.StateCheckingRunVelocity, primitives.ActionNoOp},
		{primitives.StateRunning, primitives.EventCheckRequested, primitives.StateCheckingBump, primitives.ActionCheckBump},
		{primitives.StateRunning, primitives.EventStopRequested, primitives.StateTerminated, primitives.ActionStop},
		{primitives.StateCheckingIdleVelocity, primitives.EventVelocityIsZero, primitives.StateIdle, primitives.ActionApplyVelocity},
		{primitives.StateCheckingIdleVelocity, primitives.EventVelocityIsNonZero, primitives.StateRunning, primitives.ActionApplyVelocity},
		{primitives.StateCheckingRunVelocity, primitives.EventVelocityIsZero, primitives.StateIdle, primitives.ActionApplyVelocity},
		{primitives.StateCheckingRunVelocity, primitives.EventVelocityIsNonZero, primitives.StateRunning, primitives.ActionApplyVelocity},
		{primitives.StateCheckingBump, primitives.EventBumped, primitives.StateIdle, primitives.ActionApplyVelocity},
		{primitives.StateCheckingBump, primitives.EventNotBumped, primitives.StateRunning, primitives.ActionApplyVelocity},
	}
}

// DefaultTable builds the table from DefaultEntries.
func DefaultTable() *Table {
	t, err := NewTable(DefaultEntries())
	if err != nil {
		panic(fmt.Sprintf("default transition table: %v", err))
	}
	return t
}

// NewTable validates entries and builds an immutable table.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{entries: make(map[key]Transition, len(entries))}
	for i, e := range entries {
		switch {
		case !e.From.Valid() || !e.Next.Valid():
			return nil, fmt.Errorf("entry %d: unknown state", i)
		case !e.Event.Valid():
			return nil, fmt.Errorf("entry %d: unknown event", i)
		case !e.Action.Valid():
			return nil, fmt.Errorf("entry %d: unknown action", i)
		case e.From.Terminal():
			return nil, fmt.Errorf("entry %d: %s is absorbing and cannot have transitions", i, e.From)
		}
		k := key{e.From, e.Event}
		if _, dup := t.entries[k]; dup {
			return nil, fmt.Errorf("entry %d: duplicate transition for (%s, %s)", i, e.From, e.Event)
		}
		t.entries[k] = Transition{Next: e.Next, Action: e.Action}
	}
	t.version = fingerprint(t.Entries())
	return t, nil
}

// Lookup returns the transition for (s, e), if any.
func (t *Table) Lookup(s primitives.State, e primitives.Event) (Transition, bool) {
	tr, ok := t.entries[key{s, e}]
	return tr, ok
}

// Len returns the number of transitions.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of the table ordered by (from, event).
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for k, tr := range t.entries {
		out = append(out, Entry{From: k.state, Event: k.event, Next: tr.Next, Action: tr.Action})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Event < out[j].Event
	})
	return out
}

// Version is a stable fingerprint of the table contents.
func (t *Table) Version() string { return t.version }

func fingerprint(entries []Entry) string {
	data, err := json.Marshal(entries)
	if err != nil {
		return "invalid"
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}
