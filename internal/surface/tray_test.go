package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

func TestNewTray_InitializesCorrectly(t *testing.T) {
	tray := NewTray()

	assert.NotNil(t, tray.done)
	assert.NotNil(t, tray.iconIdle)
	assert.NotNil(t, tray.iconRunning)
	assert.False(t, tray.running)
	assert.False(t, tray.ready)
	assert.Nil(t, tray.status)
}

func TestTray_CallbackRegistration(t *testing.T) {
	tray := NewTray()

	disconnected := false
	assert.NoError(t, tray.OnDisconnect(func() { disconnected = true }))
	assert.NoError(t, tray.OnQuit(func() {}))

	tray.onDisconnect()
	assert.True(t, disconnected)
}

func TestTray_CallbackErrorsAfterRunning(t *testing.T) {
	tray := NewTray()

	// Simulate running state without calling Run(), which needs a display.
	tray.mu.Lock()
	tray.running = true
	tray.mu.Unlock()

	assert.ErrorIs(t, tray.OnDisconnect(func() {}), ErrTrayAlreadyRunning)
	assert.ErrorIs(t, tray.OnQuit(func() {}), ErrTrayAlreadyRunning)
	assert.ErrorIs(t, tray.Run(), ErrTrayRunTwice)
}

func TestTray_RunRequiresDisconnectCallback(t *testing.T) {
	tray := NewTray()
	assert.ErrorIs(t, tray.Run(), ErrTrayMissingCallbacks)
}

func TestTray_PublishBeforeReady(t *testing.T) {
	tray := NewTray()
	status := traffic.Status{Title: traffic.StatusTitle, Summary: "↑0B ↓0B | 00:00:00"}

	assert.NoError(t, tray.Publish(status))
	if assert.NotNil(t, tray.status) {
		assert.Equal(t, status, *tray.status, "status is kept until the tray is ready")
	}

	assert.NoError(t, tray.Withdraw())
	assert.Nil(t, tray.status)
}

func TestDetailRows(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		want   []string
	}{
		{"empty", "", []string{"", "", "", "", ""}},
		{"partial", "a\nb", []string{"a", "b", "", "", ""}},
		{"exact", "1\n2\n3\n4\n5", []string{"1", "2", "3", "4", "5"}},
		{"overflow", "1\n2\n3\n4\n5\n6", []string{"1", "2", "3", "4", "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detailRows(tt.detail))
		})
	}
}

func TestTray_OnExitStopsRefresh(t *testing.T) {
	tray := NewTray()
	tray.ready = true

	tray.onExit()
	assert.False(t, tray.ready, "no tray calls after exit")
}
