package store

import (
	"sync"
	"time"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

// Memory keeps the counters in process memory only. It is used when persistence
// is disabled and as a test double; SetFailure makes subsequent calls fail.
type Memory struct {
	mu      sync.Mutex
	record  record
	saves   int
	failErr error
}

// Compile-time check that Memory implements Store.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the held counters.
func (m *Memory) Load() (traffic.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return traffic.Counters{}, m.failErr
	}
	return m.record.counters(), nil
}

// Save replaces the held counters.
func (m *Memory) Save(c traffic.Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.record = toRecord(c)
	m.saves++
	return nil
}

// Clear resets the held counters.
func (m *Memory) Clear(now time.Time) (traffic.Counters, error) {
	return clearWith(m, now)
}

// SetFailure makes every following call return err. A nil err restores normal operation.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Saves returns the number of successful saves.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
