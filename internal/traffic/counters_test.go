package traffic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounters_Accrue(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("absent last update accrues nothing", func(t *testing.T) {
		c := Counters{TotalConnectedSeconds: 10}
		c.Accrue(t0)
		assert.Equal(t, uint64(10), c.TotalConnectedSeconds)
		assert.Equal(t, t0, c.LastUpdate)
	})

	t.Run("whole seconds are added", func(t *testing.T) {
		c := Counters{LastUpdate: t0}
		c.Accrue(t0.Add(5*time.Second + 900*time.Millisecond))
		assert.Equal(t, uint64(5), c.TotalConnectedSeconds)
	})

	t.Run("clock moving backwards accrues nothing", func(t *testing.T) {
		c := Counters{LastUpdate: t0, TotalConnectedSeconds: 3}
		c.Accrue(t0.Add(-time.Hour))
		assert.Equal(t, uint64(3), c.TotalConnectedSeconds)
		assert.Equal(t, t0.Add(-time.Hour), c.LastUpdate)
	})
}

func TestCounters_ConnectedTime(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := Counters{TotalConnectedSeconds: 60}
	assert.Equal(t, time.Minute, c.ConnectedTime(t0), "no open session")

	c.SessionStart = t0
	assert.Equal(t, time.Minute+10*time.Second, c.ConnectedTime(t0.Add(10*time.Second+300*time.Millisecond)))
	assert.Equal(t, time.Minute, c.ConnectedTime(t0.Add(-time.Second)), "start in the future")
}

func TestUnixMillis(t *testing.T) {
	assert.Equal(t, int64(0), UnixMillis(time.Time{}))
	assert.True(t, FromUnixMillis(0).IsZero())
	assert.True(t, FromUnixMillis(-5).IsZero())

	ts := time.UnixMilli(1767225600123)
	assert.Equal(t, ts, FromUnixMillis(UnixMillis(ts)))
}
