package traffic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name     string
		bytes    uint64
		expected string
	}{
		{"zero", 0, "0B"},
		{"one byte", 1, "1B"},
		{"just under 1 KB", 1023, "1023B"},
		{"exactly 1 KB", 1024, "1.0KB"},
		{"1.5 KB", 1536, "1.5KB"},
		{"just under 1 MB rounds up in KB", 1024*1024 - 1, "1024.0KB"},
		{"exactly 1 MB", 1024 * 1024, "1.0MB"},
		{"1.5 MB", 1024 * 1024 * 3 / 2, "1.5MB"},
		{"exactly 1 GB", 1024 * 1024 * 1024, "1.0GB"},
		{"beyond GB stays in GB", 1024 * 1024 * 1024 * 1024, "1024.0GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatBytes(tt.bytes))
		})
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one hour one minute one second", 3661 * time.Second, "01:01:01"},
		{"sub-second is truncated", 1500 * time.Millisecond, "00:00:01"},
		{"more than a day", 25 * time.Hour, "25:00:00"},
		{"three digit hours", 100*time.Hour + 59*time.Second, "100:00:59"},
		{"negative", -time.Minute, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatClock(tt.duration))
		})
	}
}
