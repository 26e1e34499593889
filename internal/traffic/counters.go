// Package traffic holds the session counter model for the VPN traffic monitor
// and renders it into human-readable status text.
package traffic

import "time"

// Counters contains the traffic volume and connected duration of the tracked session.
type Counters struct {
	// UploadBytes is the latest cumulative upload count supplied by the caller.
	UploadBytes uint64
	// DownloadBytes is the latest cumulative download count supplied by the caller.
	DownloadBytes uint64

	// SessionStart is when monitoring started. The zero value means absent.
	SessionStart time.Time
	// LastUpdate is the time of the last counter update or monitor start.
	// The zero value means absent.
	LastUpdate time.Time

	// TotalConnectedSeconds is the accumulated connected duration, excluding
	// the currently open session.
	TotalConnectedSeconds uint64
}

// TotalBytes returns upload and download combined.
func (c Counters) TotalBytes() uint64 {
	return c.UploadBytes + c.DownloadBytes
}

// Accrue adds the whole seconds elapsed since LastUpdate to TotalConnectedSeconds
// and advances LastUpdate to now. An absent LastUpdate or a clock that moved
// backwards contributes nothing.
func (c *Counters) Accrue(now time.Time) {
	if !c.LastUpdate.IsZero() {
		if elapsed := now.Sub(c.LastUpdate); elapsed > 0 {
			c.TotalConnectedSeconds += uint64(elapsed / time.Second)
		}
	}
	c.LastUpdate = now
}

// ConnectedTime returns the accumulated connected duration plus the time
// elapsed since SessionStart, truncated to whole seconds.
func (c Counters) ConnectedTime(now time.Time) time.Duration {
	total := time.Duration(c.TotalConnectedSeconds) * time.Second
	if !c.SessionStart.IsZero() {
		if open := now.Sub(c.SessionStart); open > 0 {
			total += open.Truncate(time.Second)
		}
	}
	return total
}

// UnixMillis converts t to Unix milliseconds, mapping the zero time to 0.
func UnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMillis is the inverse of UnixMillis. Non-positive values map to the zero time.
func FromUnixMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
