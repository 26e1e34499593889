// Package disconnect carries the user's "disconnect" action from the status
// surface to the application layer.
//
// A Signal is a single-slot outbox on the service side: firing while an
// activation is already pending replaces it, and taking empties the slot.
// A Guard sits on the receiving side and accepts each activation once.
package disconnect

import (
	"sync"

	"github.com/google/uuid"
)

// Signal is a single-slot outbound disconnect notification.
type Signal struct {
	mu      sync.Mutex
	pending string
	ready   chan struct{}
}

// NewSignal creates an empty signal.
func NewSignal() *Signal {
	return &Signal{ready: make(chan struct{}, 1)}
}

// Fire records a new activation and wakes the consumer. It returns the
// activation ID, which receivers use to recognise repeated deliveries.
func (s *Signal) Fire() string {
	id := uuid.New().String()

	s.mu.Lock()
	s.pending = id
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return id
}

// Ready is signalled after Fire. A wake-up may find the slot already taken.
func (s *Signal) Ready() <-chan struct{} {
	return s.ready
}

// Take empties the slot and returns the pending activation, if any.
func (s *Signal) Take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.pending
	s.pending = ""
	return id, id != ""
}

// Pending reports whether an activation is waiting to be delivered.
func (s *Signal) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != ""
}
