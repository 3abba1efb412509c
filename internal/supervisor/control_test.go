package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobControl_NilSafe(t *testing.T) {
	var c *JobControl
	c.Cancel()
	c.Pause()
	assert.False(t, c.Cancelled())
	assert.Equal(t, PriorityNormal, c.Priority())
}

func TestJobControl_TogglePause(t *testing.T) {
	c := NewJobControl()
	assert.True(t, c.TogglePause())
	assert.True(t, c.Snapshot().Paused)
	assert.False(t, c.TogglePause())
	assert.False(t, c.Snapshot().Paused)
}

func TestPriority_NextCycles(t *testing.T) {
	p := PriorityNormal
	seen := []Priority{p}
	for i := 0; i < 4; i++ {
		p = p.Next()
		seen = append(seen, p)
	}
	assert.Equal(t, []Priority{PriorityNormal, PriorityBelowNormal, PriorityLow, PriorityIdle, PriorityNormal}, seen)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("idle")
	require.NoError(t, err)
	assert.Equal(t, 19, p.Nice())

	_, err = ParsePriority("realtime")
	assert.Error(t, err)
}
