package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"syscall"
	"time"
)

// notifySystemd sends a state notification to systemd when running under Type=notify.
func notifySystemd(state string) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}

	conn, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_DGRAM, 0)
	if err != nil {
		slog.Warn("Failed to create notify socket", "error", err)
		return
	}
	defer func() { _ = syscall.Close(conn) }()

	addr := &syscall.SockaddrUnix{Name: socketPath}
	if err := syscall.Sendto(conn, []byte(state), 0, addr); err != nil {
		slog.Warn("Failed to notify systemd", "error", err)
	}
}

// watchdogInterval returns half of WATCHDOG_USEC, or 0 when the watchdog is off.
func watchdogInterval() time.Duration {
	raw := os.Getenv("WATCHDOG_USEC")
	if raw == "" {
		return 0
	}
	usec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || usec <= 0 {
		slog.Warn("Invalid WATCHDOG_USEC", "value", raw)
		return 0
	}
	return time.Duration(usec) * time.Microsecond / 2
}

// watchdogLoop pings the systemd watchdog until ctx is cancelled.
func watchdogLoop(ctx context.Context) {
	interval := watchdogInterval()
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notifySystemd("WATCHDOG=1")
		}
	}
}
