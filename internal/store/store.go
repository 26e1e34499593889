// Package store persists the traffic session counters so they survive
// process restarts.
//
// Every backend keeps the same five fields under the same stable key names
// inside a namespace private to the traffic feature. Writes replace all five
// fields at once; a reader never observes a partially written record.
package store

import (
	"errors"
	"time"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

// Namespace scopes the persisted fields to the traffic feature.
const Namespace = "vpn_traffic_prefs"

// Persisted key names.
const (
	KeyUploadBytes        = "upload_bytes"
	KeyDownloadBytes      = "download_bytes"
	KeyTotalConnectedTime = "total_connected_time"
	KeySessionStartTime   = "session_start_time"
	KeyLastUpdateTime     = "last_update_time"
)

var (
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown store backend")
	// ErrStoreUnavailable is returned when the underlying medium cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Store is durable storage for the session counters.
//
// Errors are returned to the owner of the in-memory counters, which logs them
// and keeps its own copy authoritative until the next successful Save.
type Store interface {
	// Load returns the stored counters, or zero values when nothing is stored.
	Load() (traffic.Counters, error)
	// Save overwrites all stored fields with c.
	Save(c traffic.Counters) error
	// Clear resets all fields and stamps a fresh session start at now.
	// It returns the counters that were written.
	Clear(now time.Time) (traffic.Counters, error)
}

// record is the persisted layout. Timestamps are Unix milliseconds, 0 meaning absent.
type record struct {
	UploadBytes        uint64 `json:"upload_bytes"`
	DownloadBytes      uint64 `json:"download_bytes"`
	TotalConnectedTime uint64 `json:"total_connected_time"`
	SessionStartTime   int64  `json:"session_start_time"`
	LastUpdateTime     int64  `json:"last_update_time"`
}

func toRecord(c traffic.Counters) record {
	return record{
		UploadBytes:        c.UploadBytes,
		DownloadBytes:      c.DownloadBytes,
		TotalConnectedTime: c.TotalConnectedSeconds,
		SessionStartTime:   traffic.UnixMillis(c.SessionStart),
		LastUpdateTime:     traffic.UnixMillis(c.LastUpdate),
	}
}

func (r record) counters() traffic.Counters {
	return traffic.Counters{
		UploadBytes:           r.UploadBytes,
		DownloadBytes:         r.DownloadBytes,
		TotalConnectedSeconds: r.TotalConnectedTime,
		SessionStart:          traffic.FromUnixMillis(r.SessionStartTime),
		LastUpdate:            traffic.FromUnixMillis(r.LastUpdateTime),
	}
}

// cleared returns the clean-slate counters written by Clear.
func cleared(now time.Time) traffic.Counters {
	return traffic.Counters{
		SessionStart: now,
		LastUpdate:   now,
	}
}

// clearWith implements Clear in terms of a backend's Save.
func clearWith(s Store, now time.Time) (traffic.Counters, error) {
	c := cleared(now)
	if err := s.Save(c); err != nil {
		return c, err
	}
	return c, nil
}
