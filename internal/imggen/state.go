package imggen

// State is the explicit request lifecycle. A request occupies exactly
// one state; the odd/even-counter encoding some clients use is replaced
// by transition below.
type State int

const (
	StateIdle State = iota
	StateLoadingExisting
	StateGeneratingNew
	StateRegenerating
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingExisting:
		return "loading_existing"
	case StateGeneratingNew:
		return "generating_new"
	case StateRegenerating:
		return "regenerating"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the request. Failed is
// terminal for the current input signature; only a new request leaves
// it.
func (s State) Terminal() bool {
	return s == StateLoaded || s == StateFailed
}

var validTransitions = map[State][]State{
	StateIdle:            {StateLoadingExisting, StateGeneratingNew, StateRegenerating},
	StateLoadingExisting: {StateLoaded, StateFailed},
	StateGeneratingNew:   {StateLoaded, StateFailed},
	StateRegenerating:    {StateLoaded, StateFailed},
}

// transition reports whether from -> to is a legal state change.
func transition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
