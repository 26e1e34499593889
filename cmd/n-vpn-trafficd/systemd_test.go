package main

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdogInterval(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"2000000", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("WATCHDOG_USEC", tt.value)
			assert.Equal(t, tt.want, watchdogInterval())
		})
	}
}

func TestNotifySystemd(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: socketPath, Net: "unixgram"})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", socketPath)
	notifySystemd("READY=1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "READY=1", string(buf[:n]))
}

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	notifySystemd("READY=1") // Should not panic
}
