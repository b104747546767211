package core

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying pilot failures. Use errors.Is against these;
// the concrete types below carry the detail.
var (
	// ErrSetup marks a failure provisioning the mailbox or actuator.
	ErrSetup = errors.New("pilot setup failed")
	// ErrTransport marks a mailbox failure after setup.
	ErrTransport = errors.New("pilot transport failed")
	// ErrInvalidCommand marks a command rejected before it was enqueued.
	ErrInvalidCommand = errors.New("invalid pilot command")
	// ErrAlreadyLaunched is returned when a machine is launched twice.
	ErrAlreadyLaunched = errors.New("machine already launched")
)

// SetupError reports a failed provisioning step. Fatal: the pilot is not
// usable and Create may be retried.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func (e *SetupError) Is(target error) bool { return target == ErrSetup }

// TransportError reports a send or receive failure after setup. Fatal for
// the engine: the loop stops and releases its resources.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// CommandError reports a command rejected at the API boundary.
type CommandError struct {
	Field  string
	Value  any
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("invalid command [field=%s, value=%v]: %s", e.Field, e.Value, e.Reason)
}

func (e *CommandError) Is(target error) bool { return target == ErrInvalidCommand }
