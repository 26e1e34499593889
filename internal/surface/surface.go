// Package surface provides the status surfaces the traffic monitor publishes
// to: a desktop notification over D-Bus, a system tray indicator and a log
// fallback for headless hosts.
package surface

import (
	"errors"
	"log/slog"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

// Surface is implemented by every status surface in this package.
type Surface interface {
	Publish(status traffic.Status) error
	Withdraw() error
}

// Multi fans a status out to several surfaces. A failing surface does not
// prevent the others from being updated.
type Multi []Surface

// Publish publishes status on every surface and joins their errors.
func (m Multi) Publish(status traffic.Status) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Withdraw withdraws every surface and joins their errors.
func (m Multi) Withdraw() error {
	var errs []error
	for _, s := range m {
		if err := s.Withdraw(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes the status to the structured log. Refreshes are logged at debug
// level; only the first publish of a session is logged at info.
type Log struct {
	visible bool
}

// Publish logs the status summary.
func (l *Log) Publish(status traffic.Status) error {
	if !l.visible {
		slog.Info("Traffic status shown", "title", status.Title, "summary", status.Summary)
		l.visible = true
		return nil
	}
	slog.Debug("Traffic status refreshed", "summary", status.Summary)
	return nil
}

// Withdraw logs the removal of the status.
func (l *Log) Withdraw() error {
	if l.visible {
		slog.Info("Traffic status withdrawn")
	}
	l.visible = false
	return nil
}
