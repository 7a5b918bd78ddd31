package task

// State tracks the lifecycle of a running acquisition task. Running is the
// initial state; Cancelled and Finished are both terminal.
type State int

const (
	StateRunning State = iota
	StateCancelled
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateFinished:
		return "finished"
	default:
		return "invalid"
	}
}
