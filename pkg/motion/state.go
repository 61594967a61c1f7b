package motion

import "fmt"

// State is a robot behavior.
type State uint8

// Motion states.
const (
	LookAhead State = iota
	LookLeft
	LookRight
	MoveForward
	TurnLeft
	TurnRight
	Stop
	numStates
)

var stateNames = [numStates]string{
	LookAhead:   "LookAhead",
	LookLeft:    "LookLeft",
	LookRight:   "LookRight",
	MoveForward: "MoveForward",
	TurnLeft:    "TurnLeft",
	TurnRight:   "TurnRight",
	Stop:        "Stop",
}

// AllStates returns every state in declaration order.
func AllStates() []State {
	states := make([]State, 0, numStates)
	for s := State(0); s < numStates; s++ {
		states = append(states, s)
	}
	return states
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s < numStates
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("State(%d)", uint8(s))
	}
	return stateNames[s]
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return State(s), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}
