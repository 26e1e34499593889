package surface

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

type recordingSurface struct {
	published []traffic.Status
	withdrawn int
	err       error
}

func (r *recordingSurface) Publish(status traffic.Status) error {
	r.published = append(r.published, status)
	return r.err
}

func (r *recordingSurface) Withdraw() error {
	r.withdrawn++
	return r.err
}

func TestMulti_FansOut(t *testing.T) {
	a := &recordingSurface{}
	b := &recordingSurface{}
	m := Multi{a, b}

	status := traffic.Status{Title: traffic.StatusTitle, Summary: "↑0B ↓0B | 00:00:00"}
	assert.NoError(t, m.Publish(status))
	assert.NoError(t, m.Withdraw())

	for _, s := range []*recordingSurface{a, b} {
		assert.Equal(t, []traffic.Status{status}, s.published)
		assert.Equal(t, 1, s.withdrawn)
	}
}

func TestMulti_FailureDoesNotStopOthers(t *testing.T) {
	errBroken := errors.New("broken")
	failing := &recordingSurface{err: errBroken}
	healthy := &recordingSurface{}
	m := Multi{failing, healthy}

	err := m.Publish(traffic.Status{})
	assert.ErrorIs(t, err, errBroken)
	assert.Len(t, healthy.published, 1, "healthy surface should still be updated")

	err = m.Withdraw()
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, 1, healthy.withdrawn)
}

func TestMulti_Empty(t *testing.T) {
	var m Multi
	assert.NoError(t, m.Publish(traffic.Status{}))
	assert.NoError(t, m.Withdraw())
}

func TestLog_TracksVisibility(t *testing.T) {
	l := &Log{}

	assert.NoError(t, l.Publish(traffic.Status{Summary: "a"}))
	assert.True(t, l.visible)
	assert.NoError(t, l.Publish(traffic.Status{Summary: "b"}))
	assert.True(t, l.visible)

	assert.NoError(t, l.Withdraw())
	assert.False(t, l.visible)
	assert.NoError(t, l.Withdraw(), "withdraw while hidden is harmless")
}
