package watch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperFires(t *testing.T) {
	var fired atomic.Int32
	s, err := NewSweeper("@every 10ms", func() { fired.Add(1) })
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	waitFor(t, 2*time.Second, "sweep to fire", func() bool { return fired.Load() >= 1 })
}

func TestSweeperStopWaitsForRunningSweep(t *testing.T) {
	var fired atomic.Int32
	s, err := NewSweeper("@every 10ms", func() {
		time.Sleep(50 * time.Millisecond)
		fired.Add(1)
	})
	require.NoError(t, err)

	s.Start()
	waitFor(t, 2*time.Second, "sweep to fire", func() bool { return fired.Load() >= 1 })
	before := fired.Load()
	s.Stop()
	assert.GreaterOrEqual(t, fired.Load(), before, "a sweep in flight completes before Stop returns")
}

func TestSweeperDefaultSchedule(t *testing.T) {
	s, err := NewSweeper("", func() {})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())
}

func TestSweeperInvalidSpec(t *testing.T) {
	_, err := NewSweeper("every five minutes", func() {})
	assert.Error(t, err)
}
