// Package main provides the n-vpn-traffic command line client.
//
// It drives the traffic service the same way the application layer does:
//
//	n-vpn-traffic start|stop|reset
//	n-vpn-traffic update <upload> <download>
//	n-vpn-traffic status|data
//	n-vpn-traffic intent <action> [key=value...]
//	n-vpn-traffic watch
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rianphlox/n-vpn/internal/client"
	"github.com/rianphlox/n-vpn/internal/config"
	"github.com/rianphlox/n-vpn/internal/gateway/protocol"
	"github.com/rianphlox/n-vpn/internal/logging"
	"github.com/rianphlox/n-vpn/internal/traffic"
)

var (
	version = "dev"
)

// errUsage marks errors caused by bad command line arguments.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("n-vpn-traffic", flag.ContinueOnError)
	fs.SetOutput(stderr)
	socketPath := fs.String("socket", "", "Path to the service socket (default from config)")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "Timeout for each request")
	jsonOut := fs.Bool("json", false, "Print results as JSON")
	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: n-vpn-traffic [flags] start|stop|update <up> <down>|status|data|reset|intent <action> [k=v...]|watch")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "n-vpn-traffic %s\n", version)
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	paths, err := config.GetPaths()
	if err != nil {
		fmt.Fprintf(stderr, "failed to resolve paths: %v\n", err)
		return 1
	}
	envErr := config.LoadEnvFile(paths.EnvFile)
	logging.SetupFromEnv()
	if envErr != nil {
		slog.Warn("Ignoring env file", "error", envErr)
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg.ApplyPaths(paths)
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}

	cmd := &command{
		socketPath:        cfg.SocketPath,
		timeout:           *timeout,
		json:              *jsonOut,
		disconnectCommand: cfg.DisconnectCommand,
		stdout:            stdout,
	}
	if err := cmd.run(fs.Arg(0), fs.Args()[1:]); err != nil {
		fmt.Fprintf(stderr, "n-vpn-traffic: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

type command struct {
	socketPath        string
	timeout           time.Duration
	json              bool
	disconnectCommand string
	stdout            io.Writer
}

func (c *command) run(name string, args []string) error {
	cl, err := client.Dial(c.socketPath)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	if name == "watch" {
		return c.watch(cl)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	switch name {
	case "start":
		return c.ack(cl.Start(ctx))
	case "stop":
		return c.ack(cl.Stop(ctx))
	case "reset":
		return c.ack(cl.Reset(ctx))
	case "update":
		upload, download, err := parseUpdateArgs(args)
		if err != nil {
			return err
		}
		return c.ack(cl.Update(ctx, upload, download))
	case "status":
		running, err := cl.IsRunning(ctx)
		if err != nil {
			return err
		}
		if c.json {
			return c.printJSON(map[string]bool{"running": running})
		}
		if running {
			fmt.Fprintln(c.stdout, "running")
		} else {
			fmt.Fprintln(c.stdout, "idle")
		}
		return nil
	case "data":
		data, err := cl.GetData(ctx)
		if err != nil {
			return err
		}
		if c.json {
			return c.printJSON(data)
		}
		c.printData(data)
		return nil
	case "intent":
		action, extras, err := parseIntentArgs(args)
		if err != nil {
			return err
		}
		return c.ack(cl.SendIntent(action, extras))
	default:
		// Passed through so the service answers with "not implemented".
		raw, err := cl.Call(ctx, protocol.Command(name), nil)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.stdout, string(raw))
		return err
	}
}

func (c *command) ack(err error) error {
	if err != nil {
		return err
	}
	if c.json {
		return c.printJSON(map[string]bool{"ok": true})
	}
	_, err = fmt.Fprintln(c.stdout, "ok")
	return err
}

func (c *command) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *command) printData(d protocol.DataResult) {
	fmt.Fprintf(c.stdout, "Upload: %s\n", traffic.FormatBytes(d.UploadBytes))
	fmt.Fprintf(c.stdout, "Download: %s\n", traffic.FormatBytes(d.DownloadBytes))
	fmt.Fprintf(c.stdout, "Total Traffic: %s\n", traffic.FormatBytes(d.UploadBytes+d.DownloadBytes))
	fmt.Fprintf(c.stdout, "Connected Time: %s\n", traffic.FormatClock(time.Duration(d.TotalConnectedTime)*time.Second))
	if start := d.SessionStart(); start.IsZero() {
		fmt.Fprintln(c.stdout, "Session Start: -")
	} else {
		fmt.Fprintf(c.stdout, "Session Start: %s\n", start.Local().Format(time.RFC3339))
	}
}

// watch waits for disconnect requests until interrupted or the service goes away.
func (c *command) watch(cl *client.Client) error {
	requests := newActivationQueue()
	if err := cl.OnDisconnectRequested(requests.Add); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-requests.Ready():
			for requests.Take() {
				fmt.Fprintln(c.stdout, "disconnect requested")
				c.runDisconnectCommand()
			}
		case <-sigChan:
			return nil
		case <-cl.Done():
			return errors.New("traffic service went away")
		}
	}
}

// activationQueue counts disconnect activations that have not been handled
// yet. Add never blocks the client's read loop.
type activationQueue struct {
	mu      sync.Mutex
	pending int
	ready   chan struct{}
}

func newActivationQueue() *activationQueue {
	return &activationQueue{ready: make(chan struct{}, 1)}
}

func (q *activationQueue) Add() {
	q.mu.Lock()
	q.pending++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after Add. Drain with Take until it returns false.
func (q *activationQueue) Ready() <-chan struct{} {
	return q.ready
}

// Take consumes one pending activation.
func (q *activationQueue) Take() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return false
	}
	q.pending--
	return true
}

func (c *command) runDisconnectCommand() {
	if c.disconnectCommand == "" {
		return
	}
	cmd := exec.Command("/bin/sh", "-c", c.disconnectCommand)
	cmd.Stdout = c.stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		slog.Error("Disconnect command failed", "command", c.disconnectCommand, "error", err)
	}
}

func parseUpdateArgs(args []string) (upload, download uint64, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("%w: update <upload> <download>", errUsage)
	}
	upload, err = strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid upload %q", errUsage, args[0])
	}
	download, err = strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid download %q", errUsage, args[1])
	}
	return upload, download, nil
}

func parseIntentArgs(args []string) (string, map[string]any, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: intent <action> [key=value...]", errUsage)
	}
	var extras map[string]any
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("%w: extra %q is not key=value", errUsage, kv)
		}
		if extras == nil {
			extras = make(map[string]any)
		}
		extras[key] = value
	}
	return args[0], extras, nil
}
