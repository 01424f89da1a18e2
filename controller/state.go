package controller

// State is the controller's position in the run lifecycle.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Running
	Faulted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Status returns the human-readable status line for s.
func (s State) Status() string {
	switch s {
	case Uninitialized:
		return "Runtime not started"
	case Loading:
		return "Loading runtime…"
	case Ready:
		return "Runtime ready"
	case Running:
		return "Running…"
	case Faulted:
		return "Runtime failed to load"
	default:
		return ""
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
