package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRestart(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2026, 3, 10, 18, 0, 0, 0, loc), nextRestart(now, 18))
	assert.Equal(t, time.Date(2026, 3, 11, 4, 0, 0, 0, loc), nextRestart(now, 4))
	assert.Equal(t, time.Date(2026, 3, 11, 14, 0, 0, 0, loc), nextRestart(now, 14))
}

func TestRuntime_RaiseKeepsFirstSignal(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	assert.True(t, rt.Raise(Restart))
	assert.False(t, rt.Raise(Terminate))
	assert.Equal(t, Restart, <-rt.Signals())
}

func TestRuntime_ScheduleDailyRestart(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	require.NoError(t, rt.ScheduleDailyRestart(-1))
	assert.Empty(t, rt.Jobs().List())

	require.NoError(t, rt.ScheduleDailyRestart(3))
	assert.Equal(t, []string{"autorestart"}, rt.Jobs().List())
}

func TestSignalMessages(t *testing.T) {
	assert.Equal(t, "restart requested", Restart.Error())
	assert.Equal(t, "shutdown requested", Terminate.Error())
}
