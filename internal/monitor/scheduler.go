package monitor

import (
	"sync"
	"time"
)

// DefaultInterval is the status refresh period while running.
const DefaultInterval = 2 * time.Second

// Scheduler runs a callback repeatedly until the returned cancel function is called.
// Cancel must be safe to call more than once. A call to fn racing with cancel
// may still happen, so fn has to tolerate a late delivery.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler is a Scheduler backed by time.Ticker.
type TickerScheduler struct{}

// Every calls fn on its own goroutine every interval.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(stop)
		})
	}
}
