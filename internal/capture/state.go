package capture

import (
	"errors"
	"fmt"
)

// State is the capture controller's lifecycle position
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateProcessing State = "processing"
	StateError      State = "error"
)

// ErrInvalidTransition is returned when a transition is not in the table
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists every allowed move. stopping -> idle is the teardown path,
// where the captured audio is discarded instead of transcribed.
var transitions = map[State][]State{
	StateIdle:       {StateAcquiring},
	StateAcquiring:  {StateRecording, StateError, StateIdle},
	StateRecording:  {StateStopping},
	StateStopping:   {StateProcessing, StateError, StateIdle},
	StateProcessing: {StateIdle, StateError},
	StateError:      {StateIdle},
}

// CanTransition reports whether moving from s to next is allowed
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Busy reports whether a session is in flight in this state
func (s State) Busy() bool {
	return s != StateIdle
}

func checkTransition(from, to State) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
