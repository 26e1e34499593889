// Package monitor implements the traffic monitor: it owns the session
// counters, drives the Idle/Running lifecycle and refreshes the status
// surface on a repeating timer while running.
package monitor

// State is the lifecycle state of the traffic monitor.
type State string

const (
	// StateIdle means the refresh loop is not active. Every process starts here.
	StateIdle State = "idle"
	// StateRunning means a session is being monitored and the status surface is refreshed periodically.
	StateRunning State = "running"
)

// IsRunning returns true if the state has an active refresh loop.
func (s State) IsRunning() bool {
	return s == StateRunning
}

// validTransitions defines the allowed state transitions.
var validTransitions = map[State][]State{
	StateIdle:    {StateRunning},
	StateRunning: {StateIdle},
}

// IsValidTransition checks if transitioning from one state to another is allowed.
func IsValidTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
