package traffic

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	c := Counters{
		UploadBytes:           1536,
		DownloadBytes:         1024 * 1024,
		SessionStart:          t0,
		TotalConnectedSeconds: 3600,
	}

	status := Render(c, t0.Add(61*time.Second))

	assert.Equal(t, StatusTitle, status.Title)
	assert.Equal(t, "↑1.5KB ↓1.0MB | 01:01:01", status.Summary)

	lines := strings.Split(status.Detail, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Total Traffic: 1.0MB", lines[0])
	assert.Equal(t, "Upload: 1.5KB", lines[1])
	assert.Equal(t, "Download: 1.0MB", lines[2])
	assert.Equal(t, "Connected Time: 01:01:01", lines[3])
	assert.Equal(t, "Last Update: 09:31", lines[4])
}

func TestRender_EmptyCounters(t *testing.T) {
	status := Render(Counters{}, time.Now())
	assert.Equal(t, "↑0B ↓0B | 00:00:00", status.Summary)
}
