package monitor

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rianphlox/n-vpn/internal/store"
	"github.com/rianphlox/n-vpn/internal/traffic"
)

// ErrMonitorClosed is returned by operations invoked after Close.
var ErrMonitorClosed = errors.New("traffic monitor closed")

// Surface is the user-visible status indicator the monitor publishes to.
type Surface interface {
	// Publish shows or replaces the status.
	Publish(status traffic.Status) error
	// Withdraw removes the status from view.
	Withdraw() error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithScheduler overrides the repeating refresh scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Monitor) { m.sched = s }
}

// WithInterval overrides the refresh period. Non-positive values keep DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// Monitor owns the in-memory session counters and the lifecycle state.
//
// All state is confined to a single loop goroutine. Public methods may be
// called from any goroutine; they are marshalled onto the loop and executed
// one at a time, together with refresh ticks, so no further locking is needed.
type Monitor struct {
	store    store.Store
	surface  Surface
	sched    Scheduler
	now      func() time.Time
	interval time.Duration

	ops       chan func()
	ticks     chan struct{}
	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once

	// Confined to the loop goroutine.
	state      State
	counters   traffic.Counters
	cancelTick func()
}

// New creates a monitor in StateIdle with counters reloaded from s.
// A load failure is logged and the monitor starts from zero counters.
func New(s store.Store, surface Surface, opts ...Option) *Monitor {
	m := &Monitor{
		store:    s,
		surface:  surface,
		sched:    TickerScheduler{},
		now:      time.Now,
		interval: DefaultInterval,
		ops:      make(chan func()),
		ticks:    make(chan struct{}, 1),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.surface == nil {
		m.surface = nopSurface{}
	}

	counters, err := s.Load()
	if err != nil {
		slog.Warn("Failed to load traffic counters, starting from zero", "error", err)
	}
	m.counters = counters

	go m.loop()
	return m
}

// Start begins a monitoring session. It is a no-op while already running.
func (m *Monitor) Start() error {
	return m.do(m.start)
}

// Stop ends the monitoring session. It is a no-op while idle.
func (m *Monitor) Stop() error {
	return m.do(m.stop)
}

// Update records the latest absolute upload and download byte counts.
func (m *Monitor) Update(upload, download uint64) error {
	return m.do(func() { m.update(upload, download) })
}

// Reset clears the counters and stamps a fresh session start. The state is unchanged.
func (m *Monitor) Reset() error {
	return m.do(m.reset)
}

// IsRunning reports whether a session is being monitored.
func (m *Monitor) IsRunning() (bool, error) {
	var running bool
	err := m.do(func() { running = m.state.IsRunning() })
	return running, err
}

// State returns the current lifecycle state.
func (m *Monitor) State() (State, error) {
	var state State
	err := m.do(func() { state = m.state })
	return state, err
}

// Data returns a snapshot of the counters. They mirror the store after every
// successful write and are authoritative after a failed one.
func (m *Monitor) Data() (traffic.Counters, error) {
	var c traffic.Counters
	err := m.do(func() { c = m.counters })
	return c, err
}

// Close tears the monitor down: the refresh timer is cancelled, counters are
// flushed and the status surface is withdrawn. Safe to call multiple times.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.do(m.teardown)
		close(m.quit)
		<-m.exited
	})
	return err
}

func (m *Monitor) loop() {
	defer close(m.exited)
	for {
		select {
		case fn := <-m.ops:
			fn()
		case <-m.ticks:
			m.tick()
		case <-m.quit:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (m *Monitor) do(fn func()) error {
	done := make(chan struct{})
	select {
	case m.ops <- func() { defer close(done); fn() }:
	case <-m.quit:
		return ErrMonitorClosed
	}
	<-done
	return nil
}

// postTick is the scheduler callback. A tick arriving while the previous one
// is still pending is dropped, so a slow render never backs up the timer.
func (m *Monitor) postTick() {
	select {
	case m.ticks <- struct{}{}:
	default:
	}
}

func (m *Monitor) start() {
	if m.state.IsRunning() {
		slog.Debug("Traffic monitor already running")
		return
	}

	now := m.now()
	m.counters.SessionStart = now
	m.counters.LastUpdate = now
	m.persist()
	m.publish(now)

	m.cancelTick = m.sched.Every(m.interval, m.postTick)
	m.transition(StateRunning)
	slog.Info("Traffic monitoring started", "interval", m.interval)
}

func (m *Monitor) stop() {
	if !m.state.IsRunning() {
		slog.Debug("Traffic monitor already stopped")
		return
	}

	m.cancelRefresh()
	m.persist()
	m.withdraw()
	m.transition(StateIdle)
	slog.Info("Traffic monitoring stopped",
		"upload", m.counters.UploadBytes,
		"download", m.counters.DownloadBytes,
		"connected_seconds", m.counters.TotalConnectedSeconds)
}

func (m *Monitor) update(upload, download uint64) {
	m.counters.UploadBytes = upload
	m.counters.DownloadBytes = download

	// Start re-stamps LastUpdate, so an interval never spans two sessions.
	now := m.now()
	m.counters.Accrue(now)

	m.persist()
	m.publish(now)
}

func (m *Monitor) reset() {
	now := m.now()
	m.counters = traffic.Counters{SessionStart: now, LastUpdate: now}
	if _, err := m.store.Clear(now); err != nil {
		slog.Warn("Failed to clear stored traffic counters", "error", err)
	}
	if m.state.IsRunning() {
		m.publish(now)
	}
	slog.Info("Traffic counters reset")
}

func (m *Monitor) tick() {
	// Ticks racing with Stop are ignored.
	if !m.state.IsRunning() {
		return
	}
	m.publish(m.now())
}

func (m *Monitor) teardown() {
	if m.state.IsRunning() {
		m.cancelRefresh()
		m.withdraw()
		m.transition(StateIdle)
	}
	m.persist()
	slog.Debug("Traffic monitor torn down")
}

func (m *Monitor) cancelRefresh() {
	if m.cancelTick != nil {
		m.cancelTick()
		m.cancelTick = nil
	}
}

func (m *Monitor) transition(to State) {
	if !IsValidTransition(m.state, to) {
		slog.Error("Invalid traffic monitor transition", "from", m.state, "to", to)
		return
	}
	slog.Debug("Traffic monitor state change", "from", m.state, "to", to)
	m.state = to
}

func (m *Monitor) persist() {
	if err := m.store.Save(m.counters); err != nil {
		slog.Warn("Failed to persist traffic counters", "error", err)
	}
}

func (m *Monitor) publish(now time.Time) {
	if err := m.surface.Publish(traffic.Render(m.counters, now)); err != nil {
		slog.Warn("Failed to publish traffic status", "error", err)
	}
}

func (m *Monitor) withdraw() {
	if err := m.surface.Withdraw(); err != nil {
		slog.Warn("Failed to withdraw traffic status", "error", err)
	}
}

type nopSurface struct{}

func (nopSurface) Publish(traffic.Status) error { return nil }
func (nopSurface) Withdraw() error              { return nil }
