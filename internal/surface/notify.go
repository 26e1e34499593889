package surface

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

// org.freedesktop.Notifications endpoint.
const (
	notificationsDest      = "org.freedesktop.Notifications"
	notificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsInterface = "org.freedesktop.Notifications"

	methodNotify             = notificationsInterface + ".Notify"
	methodCloseNotification  = notificationsInterface + ".CloseNotification"
	signalActionInvoked      = notificationsInterface + ".ActionInvoked"
	signalNotificationClosed = notificationsInterface + ".NotificationClosed"
)

// Notification actions.
const (
	// ActionDefault is invoked when the notification body is clicked.
	ActionDefault = "default"
	// ActionDisconnect is the control that asks the application to disconnect.
	ActionDisconnect = "disconnect"
)

// DefaultAppName is reported to the notification server as the sender.
const DefaultAppName = "n-vpn"

const notificationIcon = "network-vpn-symbolic"

// ErrNotifierClosed is returned by Publish after Close.
var ErrNotifierClosed = errors.New("notifier closed")

// caller is the subset of dbus.BusObject used by Notifier.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Notifier publishes the traffic status as a single resident desktop
// notification, replaced in place on every refresh. Activating its
// "Disconnect" action invokes the onDisconnect callback.
// All methods are safe for concurrent access.
type Notifier struct {
	obj          caller
	conn         *dbus.Conn
	appName      string
	onDisconnect func()

	mu     sync.Mutex
	id     uint32
	closed bool

	signals   chan *dbus.Signal
	done      chan struct{}
	closeOnce sync.Once
}

// NewNotifier connects to the session bus and subscribes to notification
// action signals. onDisconnect may be nil.
func NewNotifier(appName string, onDisconnect func()) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(notificationsPath),
			dbus.WithMatchInterface(notificationsInterface),
			dbus.WithMatchMember(member),
		); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", member, err)
		}
	}

	n := newNotifier(conn.Object(notificationsDest, notificationsPath), appName, onDisconnect)
	n.conn = conn
	conn.Signal(n.signals)
	go n.listen()

	slog.Debug("Desktop notifier connected", "app_name", n.appName)
	return n, nil
}

func newNotifier(obj caller, appName string, onDisconnect func()) *Notifier {
	if appName == "" {
		appName = DefaultAppName
	}
	return &Notifier{
		obj:          obj,
		appName:      appName,
		onDisconnect: onDisconnect,
		signals:      make(chan *dbus.Signal, 16),
		done:         make(chan struct{}),
	}
}

// Publish shows the status, replacing the previously shown notification.
func (n *Notifier) Publish(status traffic.Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNotifierClosed
	}

	actions := []string{ActionDefault, "Open", ActionDisconnect, "Disconnect"}
	hints := map[string]dbus.Variant{
		"resident": dbus.MakeVariant(true),
		"urgency":  dbus.MakeVariant(byte(0)),
		"category": dbus.MakeVariant("network.connected"),
	}
	body := status.Summary + "\n\n" + status.Detail

	call := n.obj.Call(methodNotify, 0,
		n.appName, n.id, notificationIcon, status.Title, body, actions, hints, int32(0))

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	n.id = id
	return nil
}

// Withdraw closes the notification if one is shown.
func (n *Notifier) Withdraw() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.id == 0 {
		return nil
	}

	id := n.id
	n.id = 0
	if err := n.obj.Call(methodCloseNotification, 0, id).Err; err != nil {
		return fmt.Errorf("failed to close notification %d: %w", id, err)
	}
	return nil
}

// Close stops listening for actions and releases the bus connection.
// The notification is left as is; call Withdraw first to remove it.
func (n *Notifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.mu.Unlock()

		close(n.done)
		if n.conn != nil {
			n.conn.RemoveSignal(n.signals)
			err = n.conn.Close()
		}
	})
	return err
}

func (n *Notifier) listen() {
	for {
		select {
		case <-n.done:
			return
		case sig, ok := <-n.signals:
			if !ok {
				return
			}
			n.handleSignal(sig)
		}
	}
}

// handleSignal reacts to signals concerning the notification we own.
func (n *Notifier) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	n.mu.Lock()
	ours := id != 0 && id == n.id
	if ours && sig.Name == signalNotificationClosed {
		// Closed by the user or the server; the next publish creates a fresh one.
		n.id = 0
	}
	n.mu.Unlock()

	if !ours || sig.Name != signalActionInvoked {
		return
	}

	action, _ := sig.Body[1].(string)
	slog.Debug("Notification action invoked", "action", action)
	if action == ActionDisconnect && n.onDisconnect != nil {
		n.onDisconnect()
	}
}
