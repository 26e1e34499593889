package surface

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"fyne.io/systray"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

var (
	// ErrTrayAlreadyRunning is returned when attempting to modify callbacks after Run() has been called.
	ErrTrayAlreadyRunning = errors.New("cannot modify callbacks after Tray.Run() is called")
	// ErrTrayRunTwice is returned when Run() is called more than once.
	ErrTrayRunTwice = errors.New("Tray.Run() called twice")
	// ErrTrayMissingCallbacks is returned when Run() is called without the disconnect callback set.
	ErrTrayMissingCallbacks = errors.New("OnDisconnect must be set before calling Run()")
)

// detailLines is the number of menu rows reserved for the status detail block.
const detailLines = 5

const (
	trayTitleIdle   = "N-VPN"
	trayTooltipIdle = "N-VPN - Not monitoring"
)

// Tray shows the traffic status as a system tray indicator. The summary is the
// tray title, the detail block fills disabled menu rows, and a "Disconnect"
// item fires the disconnect callback.
type Tray struct {
	mu sync.RWMutex

	// Last published status; nil while withdrawn.
	status *traffic.Status

	// Menu items
	menuSummary    *systray.MenuItem
	menuDetail     []*systray.MenuItem
	menuDisconnect *systray.MenuItem
	menuQuit       *systray.MenuItem

	// Callbacks - must be set before Run() is called
	onDisconnect func()
	onQuit       func()

	iconIdle    []byte
	iconRunning []byte

	done chan struct{}

	running   bool
	ready     bool
	closeOnce sync.Once
}

// Compile-time check that Tray implements Surface.
var _ Surface = (*Tray)(nil)

// NewTray creates a tray indicator. Run must be called to show it.
func NewTray() *Tray {
	return &Tray{
		iconIdle:    iconIdlePNG,
		iconRunning: iconRunningPNG,
		done:        make(chan struct{}),
	}
}

// OnDisconnect registers the callback for the Disconnect menu item.
// Must be called before Run(). Returns ErrTrayAlreadyRunning if called after Run().
func (t *Tray) OnDisconnect(callback func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrTrayAlreadyRunning
	}
	t.onDisconnect = callback
	return nil
}

// OnQuit registers an optional callback for the Quit menu item.
// Must be called before Run(). Returns ErrTrayAlreadyRunning if called after Run().
func (t *Tray) OnQuit(callback func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrTrayAlreadyRunning
	}
	t.onQuit = callback
	return nil
}

// Publish shows status in the tray. Before the tray is ready the status is
// kept and applied once it is.
func (t *Tray) Publish(status traffic.Status) error {
	t.mu.Lock()
	t.status = &status
	t.mu.Unlock()
	t.refresh()
	return nil
}

// Withdraw returns the tray to its idle appearance.
func (t *Tray) Withdraw() error {
	t.mu.Lock()
	t.status = nil
	t.mu.Unlock()
	t.refresh()
	return nil
}

// Run starts the system tray icon. It blocks until Quit is called, so it
// should be called from the main goroutine or a dedicated one.
// Returns ErrTrayMissingCallbacks if OnDisconnect is not set.
// Returns ErrTrayRunTwice if called more than once.
func (t *Tray) Run() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrTrayRunTwice
	}
	if t.onDisconnect == nil {
		t.mu.Unlock()
		return ErrTrayMissingCallbacks
	}
	t.running = true
	t.mu.Unlock()

	systray.Run(t.onReady, t.onExit)
	return nil
}

// Quit closes the tray and terminates the click handler goroutine.
// Safe to call multiple times.
func (t *Tray) Quit() {
	t.closeOnce.Do(func() {
		close(t.done)
		systray.Quit()
	})
}

func (t *Tray) onReady() {
	systray.SetIcon(t.iconIdle)
	systray.SetTitle(trayTitleIdle)
	systray.SetTooltip(trayTooltipIdle)

	t.mu.Lock()
	t.menuSummary = systray.AddMenuItem("Not monitoring", "Traffic summary")
	t.menuSummary.Disable()

	t.menuDetail = make([]*systray.MenuItem, detailLines)
	for i := range t.menuDetail {
		item := systray.AddMenuItem("", "Traffic detail")
		item.Disable()
		item.Hide()
		t.menuDetail[i] = item
	}

	systray.AddSeparator()

	t.menuDisconnect = systray.AddMenuItem("Disconnect", "Disconnect from VPN")
	t.menuDisconnect.Disable()
	t.menuQuit = systray.AddMenuItem("Quit", "Hide the tray indicator")
	t.ready = true
	t.mu.Unlock()

	go t.handleMenuClicks()
	t.refresh()

	slog.Info("System tray initialized")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	t.ready = false
	t.mu.Unlock()
	slog.Info("System tray closed")
}

func (t *Tray) handleMenuClicks() {
	for {
		select {
		case <-t.done:
			return
		case _, ok := <-t.menuDisconnect.ClickedCh:
			if !ok {
				return
			}
			slog.Info("Disconnect requested from tray")
			t.onDisconnect()
		case _, ok := <-t.menuQuit.ClickedCh:
			if !ok {
				return
			}
			if t.onQuit != nil {
				t.onQuit()
			}
			t.Quit()
		}
	}
}

// refresh applies the current status to the tray. It is a no-op until the tray is ready.
func (t *Tray) refresh() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ready {
		return
	}

	if t.status == nil {
		systray.SetIcon(t.iconIdle)
		systray.SetTitle(trayTitleIdle)
		systray.SetTooltip(trayTooltipIdle)
		t.menuSummary.SetTitle("Not monitoring")
		for _, item := range t.menuDetail {
			item.Hide()
		}
		t.menuDisconnect.Disable()
		return
	}

	status := *t.status
	systray.SetIcon(t.iconRunning)
	systray.SetTitle(status.Summary)
	systray.SetTooltip(status.Title + " - " + status.Summary)
	t.menuSummary.SetTitle(status.Summary)

	lines := detailRows(status.Detail)
	for i, item := range t.menuDetail {
		item.SetTitle(lines[i])
		if lines[i] == "" {
			item.Hide()
		} else {
			item.Show()
		}
	}
	t.menuDisconnect.Enable()
}

// detailRows splits a detail block into exactly detailLines rows.
func detailRows(detail string) []string {
	rows := make([]string, detailLines)
	if detail == "" {
		return rows
	}
	copy(rows, strings.Split(detail, "\n"))
	return rows
}
