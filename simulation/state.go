package simulation

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when an operation is not valid in the
// engine's current lifecycle state.
var ErrInvalidState = errors.New("invalid engine state")

// State is the engine lifecycle state.
type State int

const (
	Uninitialized State = iota
	DeviceReady
	BuffersReady
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case DeviceReady:
		return "DeviceReady"
	case BuffersReady:
		return "BuffersReady"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func invalidState(op string, s State) error {
	return fmt.Errorf("simulation: %s: %w (%s)", op, ErrInvalidState, s)
}
