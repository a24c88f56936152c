// Package session drives an interview session from wizard setup through the
// timed live recording phase to evaluation. The lifecycle is an explicit
// state machine with a typed state tag; every mutating entry point checks the
// tag first, which keeps invalid flag combinations unrepresentable.
package session

import "fmt"

// State is the session lifecycle tag.
type State string

// Session states. ERROR is reachable from GENERATING, SUBMITTING and
// EVALUATING; Retry re-enters the state the failure came from.
const (
	StateSetup      State = "SETUP"
	StateGenerating State = "GENERATING"
	StateLive       State = "LIVE"
	StateSubmitting State = "SUBMITTING"
	StateEvaluating State = "EVALUATING"
	StateDone       State = "DONE"
	StateError      State = "ERROR"
)

// TransitionError reports an event that is not legal in the current state.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Event, e.From)
}
