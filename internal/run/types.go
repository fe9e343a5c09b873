// Package run drives one AI turn through the provider's thread/run lifecycle,
// pausing for tool calls and resuming with their outputs.
package run

// State is the engine's position in the per-turn state machine.
type State string

const (
	StateIdle           State = "idle"
	StateThreadReady    State = "thread_ready"
	StateMessageAdded   State = "message_added"
	StateRunStarted     State = "run_started"
	StatePolling        State = "polling"
	StateRequiresAction State = "requires_action"
	StateToolsSubmitted State = "tools_submitted"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateExpired        State = "expired"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether the state ends the turn.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateExpired, StateCancelled:
		return true
	}
	return false
}

// Result is the outcome of one turn. ThreadID is always set once a thread
// exists, so callers can persist a newly created thread even on failure.
type Result struct {
	ThreadID string
	RunID    string
	State    State
	Reply    string
	ErrorMsg string
}
