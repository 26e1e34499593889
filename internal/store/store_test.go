package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zkeyring "github.com/zalando/go-keyring"

	"github.com/rianphlox/n-vpn/internal/config"
	"github.com/rianphlox/n-vpn/internal/traffic"
)

// sampleCounters uses millisecond-precision timestamps, which is what the persisted layout keeps.
func sampleCounters() traffic.Counters {
	return traffic.Counters{
		UploadBytes:           1000,
		DownloadBytes:         2000,
		SessionStart:          time.UnixMilli(1767225600000),
		LastUpdate:            time.UnixMilli(1767225605000),
		TotalConnectedSeconds: 5,
	}
}

// exerciseStore runs the contract shared by every backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	empty, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, traffic.Counters{}, empty, "nothing stored yet")

	want := sampleCounters()
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A second save overwrites rather than accumulates.
	want.UploadBytes = 10
	want.DownloadBytes = 20
	require.NoError(t, s.Save(want))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.UploadBytes)
	assert.Equal(t, uint64(20), got.DownloadBytes)

	now := time.UnixMilli(1767229200000)
	written, err := s.Clear(now)
	require.NoError(t, err)
	assert.Equal(t, now, written.SessionStart)

	got, err = s.Load()
	require.NoError(t, err)
	assert.Zero(t, got.UploadBytes)
	assert.Zero(t, got.DownloadBytes)
	assert.Zero(t, got.TotalConnectedSeconds)
	assert.Equal(t, now, got.SessionStart)
	assert.Equal(t, now, got.LastUpdate)
}

func TestFile(t *testing.T) {
	exerciseStore(t, NewFile(filepath.Join(t.TempDir(), "state", FileName)))
}

func TestFile_PersistedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, NewFile(path).Save(sampleCounters()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{KeyUploadBytes, KeyDownloadBytes, KeyTotalConnectedTime, KeySessionStartTime, KeyLastUpdateTime} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}
	assert.Contains(t, string(data), `"session_start_time": 1767225600000`)

	// A new store on the same path sees the same counters, as after a process restart.
	reloaded, err := NewFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCounters(), reloaded)
}

func TestFile_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))

	_, err := NewFile(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load counters")
}

func TestFile_SaveUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	// The parent "directory" is a regular file, so the write must fail.
	err := NewFile(filepath.Join(blocker, FileName)).Save(sampleCounters())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save counters")
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_Failure(t *testing.T) {
	m := NewMemory()
	boom := errors.New("disk full")
	m.SetFailure(boom)

	assert.ErrorIs(t, m.Save(sampleCounters()), boom)
	_, err := m.Load()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Saves())

	m.SetFailure(nil)
	require.NoError(t, m.Save(sampleCounters()))
	assert.Equal(t, 1, m.Saves())
}

func TestKeyring(t *testing.T) {
	zkeyring.MockInit()
	exerciseStore(t, NewKeyring("n-vpn-traffic-test"))
}

func TestKeyring_DefaultService(t *testing.T) {
	assert.Equal(t, DefaultKeyringService, NewKeyring("").service)
}

func TestKeyring_Unavailable(t *testing.T) {
	zkeyring.MockInitWithError(errors.New("secret service not running"))
	defer zkeyring.MockInit()

	s := NewKeyring("")
	assert.ErrorIs(t, s.Save(sampleCounters()), ErrStoreUnavailable)
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    any
		wantErr error
	}{
		{"file", config.StoreConfig{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), FileName)}, &File{}, nil},
		{"keyring", config.StoreConfig{Backend: config.BackendKeyring}, &Keyring{}, nil},
		{"memory", config.StoreConfig{Backend: config.BackendMemory}, &Memory{}, nil},
		{"unknown", config.StoreConfig{Backend: "etcd"}, nil, ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestOpen_FileWithoutPath(t *testing.T) {
	_, err := Open(config.StoreConfig{Backend: config.BackendFile})
	require.Error(t, err)
}
