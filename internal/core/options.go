package core

import (
	"github.com/comalice/commando/internal/logging"
	"github.com/comalice/commando/internal/primitives"
)

// WithID sets the pilot ID used in logs, snapshots and records.
func WithID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithTable replaces the transition table.
func WithTable(t *Table) Option {
	return func(m *Machine) {
		if t != nil {
			m.table = t
		}
	}
}

// WithActionRunner configures the Machine with a custom ActionRunner.
func WithActionRunner(r ActionRunner) Option {
	return func(m *Machine) {
		m.runner = r
	}
}

// WithActionHandler replaces the handler of one action in the default
// dispatcher. Ignored when WithActionRunner is also given. NewMachine panics
// if the action is undeclared or fn is nil.
func WithActionHandler(action primitives.Action, fn ActionFunc) Option {
	return func(m *Machine) {
		if m.overrides == nil {
			m.overrides = make(map[primitives.Action]ActionFunc)
		}
		m.overrides[action] = fn
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPersister configures the Machine with a snapshot Persister.
func WithPersister(p Persister) Option {
	return func(m *Machine) {
		m.persister = p
	}
}

// WithPublisher configures the Machine with a transition Publisher.
func WithPublisher(pb Publisher) Option {
	return func(m *Machine) {
		m.publisher = pb
	}
}

// WithVisualizer configures the Machine with a Visualizer.
func WithVisualizer(v Visualizer) Option {
	return func(m *Machine) {
		m.visualizer = v
	}
}

// WithHaltOnStop makes every Stop action also command zero wheel speed,
// not only emergency stops.
func WithHaltOnStop(halt bool) Option {
	return func(m *Machine) {
		m.haltOnStop = halt
	}
}
