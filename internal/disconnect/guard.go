package disconnect

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultGuardSize bounds how many handled activations a Guard remembers.
const DefaultGuardSize = 64

// Guard remembers recently handled activation IDs so that a replayed or
// re-broadcast activation is acted on at most once.
type Guard struct {
	mu   sync.Mutex
	seen *lru.Cache
}

// NewGuard creates a guard remembering up to size activations.
// A non-positive size uses DefaultGuardSize.
func NewGuard(size int) (*Guard, error) {
	if size <= 0 {
		size = DefaultGuardSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation cache: %w", err)
	}
	return &Guard{seen: cache}, nil
}

// Accept returns true the first time id is seen. Empty IDs are never accepted.
func (g *Guard) Accept(id string) bool {
	if id == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen.Contains(id) {
		return false
	}
	g.seen.Add(id, struct{}{})
	return true
}
