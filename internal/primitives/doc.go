// Package primitives provides the foundational value types of the pilot:
// the State, Event and Action enumerations, the symbolic VelocityVector and
// the fixed-shape Message carried by the mailbox.
//
// Everything here is a plain value. Types marshal to their names so that
// snapshots and logs stay readable, and parse back from the same names.
//
// Core invariants:
//   - Enumerations are closed: Valid reports whether a value is one of the
//     declared constants, and the All* helpers list every constant in order.
//   - A VelocityVector is replaced wholesale, never mutated in place.
package primitives
