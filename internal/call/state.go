package call

import "fmt"

// State is the lifecycle of one call. Only the call-control side moves it:
// ringing, answer, hangup, transport failure.
type State int

const (
	Created State = iota
	Running
	Completing
	Failed
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Completing:
		return "completing"
	case Failed:
		return "failed"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Ending reports whether the call left Running but is not yet torn down.
func (s State) Ending() bool {
	return s == Completing || s == Failed
}

var transitions = map[State][]State{
	Created:    {Running, Failed, Terminated},
	Running:    {Completing, Failed, Terminated},
	Completing: {Terminated},
	Failed:     {Terminated},
}

func validTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
