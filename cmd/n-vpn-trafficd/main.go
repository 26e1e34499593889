// Package main provides the entry point for the n-vpn-trafficd service.
//
// The service runs in the user session next to the VPN client. It keeps the
// session traffic counters, shows them on a desktop notification and in the
// tray while the tunnel is up, and answers the application layer over a
// UNIX socket using JSON messages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rianphlox/n-vpn/internal/config"
	"github.com/rianphlox/n-vpn/internal/disconnect"
	"github.com/rianphlox/n-vpn/internal/gateway"
	"github.com/rianphlox/n-vpn/internal/gateway/httpapi"
	"github.com/rianphlox/n-vpn/internal/gateway/protocol"
	"github.com/rianphlox/n-vpn/internal/gateway/server"
	"github.com/rianphlox/n-vpn/internal/lifecycle"
	"github.com/rianphlox/n-vpn/internal/logging"
	"github.com/rianphlox/n-vpn/internal/monitor"
	"github.com/rianphlox/n-vpn/internal/store"
	"github.com/rianphlox/n-vpn/internal/surface"
)

var (
	version = "dev"
)

func main() {
	os.Exit(run())
}

func run() int {
	socketPath := flag.String("socket", "", "Path to the UNIX socket (overrides config)")
	httpAddr := flag.String("http", "", "Loopback address for the HTTP API (overrides config)")
	socketGroup := flag.String("group", "", "Group granted access to the socket")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("n-vpn-trafficd %s\n", version)
		return 0
	}

	paths, err := config.GetPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve paths: %v\n", err)
		return 1
	}
	// The env file may set the logging variables, so it is read first.
	envErr := config.LoadEnvFile(paths.EnvFile)

	logging.SetupFromEnv()
	slog.Info("Starting n-vpn-trafficd", "version", version)
	if envErr != nil {
		slog.Warn("Ignoring env file", "error", envErr)
	}

	cfgMgr, err := config.NewManagerWithPaths(paths)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	cfg := cfgMgr.GetConfig()
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *httpAddr != "" {
		cfg.HTTPListenAddr = *httpAddr
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		slog.Error("Failed to open counter store", "backend", cfg.Store.Backend, "error", err)
		return 1
	}
	defer closeStore(st)

	sig := disconnect.NewSignal()
	requestDisconnect := func() {
		id := sig.Fire()
		slog.Info("Disconnect control activated", "activation_id", id)
	}

	surfaces := surface.Multi{&surface.Log{}}

	var notifier *surface.Notifier
	if cfg.Notifications {
		notifier, err = surface.NewNotifier(config.AppName, requestDisconnect)
		if err != nil {
			slog.Warn("Desktop notifications unavailable", "error", err)
		} else {
			surfaces = append(surfaces, notifier)
		}
	}

	var tray *surface.Tray
	if cfg.Tray {
		tray = surface.NewTray()
		if err := tray.OnDisconnect(requestDisconnect); err != nil {
			slog.Error("Failed to register tray callback", "error", err)
			return 1
		}
		surfaces = append(surfaces, tray)
	}

	mon := monitor.New(st, surfaces, monitor.WithInterval(cfg.RefreshInterval()))

	// The gateway needs a broadcaster before the server exists.
	broadcaster := &safeBroadcaster{}
	gw := gateway.New(mon, broadcaster.Broadcast)

	opts := []server.Option{server.WithDisconnectSignal(sig)}
	if *socketGroup != "" {
		opts = append(opts, server.WithSocketGroup(*socketGroup))
	}
	srv := server.NewServer(cfg.SocketPath, gw, opts...)
	broadcaster.SetServer(srv)

	if err := srv.Start(); err != nil {
		slog.Error("Failed to start server", "error", err)
		_ = mon.Close()
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if cfg.HTTPListenAddr != "" {
		api := httpapi.New(gw)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.ListenAndServe(ctx, cfg.HTTPListenAddr); err != nil {
				slog.Error("HTTP API failed", "error", err)
			}
		}()
	}

	notifySystemd("READY=1")
	go watchdogLoop(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigChan)

	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		for s := range sigChan {
			switch s {
			case syscall.SIGUSR1:
				gw.DeliverIntent(lifecycle.Intent{Action: lifecycle.ActionStart})
			case syscall.SIGUSR2:
				gw.DeliverIntent(lifecycle.Intent{Action: lifecycle.ActionStop})
			default:
				slog.Info("Received shutdown signal", "signal", s)
				return
			}
		}
	}()

	if tray != nil {
		go func() {
			<-shutdown
			tray.Quit()
		}()
		if err := tray.Run(); err != nil {
			slog.Error("Failed to run tray", "error", err)
		}
		// Quitting the tray from its menu does not stop the service.
	}
	<-shutdown

	notifySystemd("STOPPING=1")

	if err := srv.Stop(); err != nil {
		slog.Warn("Failed to stop server", "error", err)
	}
	cancel()
	wg.Wait()

	if err := mon.Close(); err != nil && !errors.Is(err, monitor.ErrMonitorClosed) {
		slog.Warn("Failed to close traffic monitor", "error", err)
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			slog.Debug("Failed to close notifier", "error", err)
		}
	}

	slog.Info("Shutdown complete")
	return 0
}

func closeStore(st store.Store) {
	if c, ok := st.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close counter store", "error", err)
		}
	}
}

// safeBroadcaster forwards events to the server once it has been set.
type safeBroadcaster struct {
	mu  sync.RWMutex
	srv *server.Server
}

// SetServer sets the server for broadcasting.
func (b *safeBroadcaster) SetServer(srv *server.Server) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.srv = srv
}

// Broadcast sends an event to all connected clients.
func (b *safeBroadcaster) Broadcast(event *protocol.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.srv != nil {
		b.srv.Broadcast(event)
	}
}
