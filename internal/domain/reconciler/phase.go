package reconciler

// Phase is the client-facing simplification of the engine's match state.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseRunning      Phase = "running"
	PhaseEnded        Phase = "ended"
)

// engineStates maps the engine's internal states onto client phases.
var engineStates = map[string]Phase{
	"CREATED":      PhaseInitializing,
	"INITIALIZING": PhaseInitializing,
	"RUNNING":      PhaseRunning,
	"ENDING":       PhaseEnded,
	"ENDED":        PhaseEnded,
}

// MapEngineState translates an engine state. Unrecognized states report false
// and carry no signal.
func MapEngineState(state string) (Phase, bool) {
	p, ok := engineStates[state]
	return p, ok
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInitializing, PhaseRunning, PhaseEnded:
		return true
	default:
		return false
	}
}
