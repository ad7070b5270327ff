package supervisor

// State is the lifecycle phase of a supervised process pair
type State string

const (
	// StateIdle means nothing has been started yet
	StateIdle State = "idle"

	// StateStarting means the application server is being spawned or is not
	// yet reachable on its port
	StateStarting State = "starting"

	// StateRunning means both servers are up
	StateRunning State = "running"

	// StateStopping means an ordered shutdown is in progress
	StateStopping State = "stopping"

	// StateStopped is the terminal state of a deliberate shutdown
	StateStopped State = "stopped"

	// StateCrashed is the terminal state of an unexpected exit or a failed
	// startup
	StateCrashed State = "crashed"
)

// canStartFromState validates if starting is allowed from the current state
func canStartFromState(currentState State) bool {
	switch currentState {
	case StateIdle:
		return true
	case StateStarting:
		return false // already starting
	case StateRunning:
		return false // already running
	case StateStopping:
		return false // wait for shutdown to complete
	case StateStopped, StateCrashed:
		return false // terminal, supervisors are single-use
	default:
		return false
	}
}

// IsTerminal reports whether the supervisor has finished
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateCrashed
}
