package traffic

import (
	"fmt"
	"strings"
	"time"
)

// StatusTitle is the heading shown on the status surface while monitoring.
const StatusTitle = "VPN Connected"

// Status is the rendered content of the status surface.
type Status struct {
	Title string
	// Summary is a single line: "↑<upload> ↓<download> | HH:MM:SS".
	Summary string
	// Detail is a multi-line breakdown of traffic and connected time.
	Detail string
}

// Render builds the status surface content for c as of now.
func Render(c Counters, now time.Time) Status {
	connected := FormatClock(c.ConnectedTime(now))

	detail := []string{
		"Total Traffic: " + FormatBytes(c.TotalBytes()),
		"Upload: " + FormatBytes(c.UploadBytes),
		"Download: " + FormatBytes(c.DownloadBytes),
		"Connected Time: " + connected,
		"Last Update: " + now.Format("15:04"),
	}

	return Status{
		Title:   StatusTitle,
		Summary: fmt.Sprintf("↑%s ↓%s | %s", FormatBytes(c.UploadBytes), FormatBytes(c.DownloadBytes), connected),
		Detail:  strings.Join(detail, "\n"),
	}
}
