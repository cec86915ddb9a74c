package record

import "strings"

// State is a step of one record invocation.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateCaptureFailed
	StateCaptured
	StateRendering
	StateRenderFailed
	StateRendered
	StatePublishing
	StateDone
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateCapturing:     "capturing",
	StateCaptureFailed: "capture_failed",
	StateCaptured:      "captured",
	StateRendering:     "rendering",
	StateRenderFailed:  "render_failed",
	StateRendered:      "rendered",
	StatePublishing:    "publishing",
	StateDone:          "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Trail is the sequence of states one invocation passed through.
type Trail []State

func (t Trail) String() string {
	parts := make([]string, len(t))
	for i, s := range t {
		parts[i] = s.String()
	}
	return strings.Join(parts, " → ")
}

// Last returns the final state, or StateIdle for an empty trail.
func (t Trail) Last() State {
	if len(t) == 0 {
		return StateIdle
	}
	return t[len(t)-1]
}
