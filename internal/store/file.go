package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rianphlox/n-vpn/internal/fileutil"
	"github.com/rianphlox/n-vpn/internal/traffic"
)

// FileName is the default file name of the file backend.
const FileName = Namespace + ".json"

// File stores the counters as a JSON document replaced atomically on every write.
type File struct {
	path string
	mu   sync.Mutex
}

// Compile-time check that File implements Store.
var _ Store = (*File)(nil)

// NewFile creates a file-backed store at path. The parent directory is created on first write.
func NewFile(path string) *File {
	return &File{path: filepath.Clean(path)}
}

// Path returns the location of the backing file.
func (f *File) Path() string {
	return f.path
}

// Load reads the counters from disk.
func (f *File) Load() (traffic.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var r record
	if _, err := fileutil.ReadJSON(f.path, &r); err != nil {
		return traffic.Counters{}, fmt.Errorf("failed to load counters: %w", err)
	}
	return r.counters(), nil
}

// Save writes all counters to disk.
func (f *File) Save(c traffic.Counters) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := fileutil.WriteJSON(f.path, toRecord(c), 0600); err != nil {
		return fmt.Errorf("failed to save counters: %w", err)
	}
	return nil
}

// Clear resets the stored counters.
func (f *File) Clear(now time.Time) (traffic.Counters, error) {
	return clearWith(f, now)
}
