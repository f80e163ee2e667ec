package session

// State is the lifecycle state of a Session's subprocess.
//
//	Starting -> Running -> Exited
//	Starting -> Errored
//	Running  -> Terminated
type State int

const (
	StateStarting State = iota
	StateRunning
	StateExited
	StateErrored
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateErrored:
		return "errored"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Terminal returns true if the subprocess will never accept input again.
func (s State) Terminal() bool {
	return s == StateExited || s == StateErrored || s == StateTerminated
}
