package session

import (
	"errors"
	"fmt"
)

// State is a position in the session state machine.
type State int

const (
	StateLoading State = iota
	StatePresenting
	StateSubmitting
	StateConflict
	StateDoneBatch
	StateDoneAll
)

var stateNames = map[State]string{
	StateLoading:    "loading",
	StatePresenting: "presenting",
	StateSubmitting: "submitting",
	StateConflict:   "conflict",
	StateDoneBatch:  "done_batch",
	StateDoneAll:    "done_all",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

var (
	// ErrInvalidTransition is returned for an action the current state
	// does not accept.
	ErrInvalidTransition = errors.New("action not allowed in current state")

	// ErrOutsideBatch is returned when a manual move would leave the
	// selected batch.
	ErrOutsideBatch = errors.New("position outside the selected batch")

	// ErrUnknownBatch is returned when selecting a batch that does not exist.
	ErrUnknownBatch = errors.New("unknown batch")

	// ErrConflict is returned when another annotator saved the cluster
	// since it was presented. The session waits for ConfirmOverwrite or
	// DiscardConflict.
	ErrConflict = errors.New("cluster was saved by someone else")
)

func transitionError(action string, from State) error {
	return fmt.Errorf("%s from %s: %w", action, from, ErrInvalidTransition)
}
