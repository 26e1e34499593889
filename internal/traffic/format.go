package traffic

import (
	"fmt"
	"time"
)

const (
	// Binary unit multipliers (1024-based).
	kib = 1024
	mib = kib * 1024
	gib = mib * 1024
)

// FormatBytes formats a byte count with binary units and one decimal place,
// e.g. "512B", "1.5KB", "1.0MB", "3.2GB".
func FormatBytes(bytes uint64) string {
	switch {
	case bytes < kib:
		return fmt.Sprintf("%dB", bytes)
	case bytes < mib:
		return fmt.Sprintf("%.1fKB", float64(bytes)/kib)
	case bytes < gib:
		return fmt.Sprintf("%.1fMB", float64(bytes)/mib)
	default:
		return fmt.Sprintf("%.1fGB", float64(bytes)/gib)
	}
}

// FormatClock formats a duration as zero-padded HH:MM:SS.
// Hours are not wrapped at 24. Negative durations format as 00:00:00.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
