package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quietTimer returns a started timer whose tick goroutine is effectively
// parked, so tests drive ticks manually.
func quietTimer(t *testing.T, total int) *Timer {
	t.Helper()
	tm := NewTimer(total, zerolog.Nop())
	tm.interval = time.Hour
	require.NoError(t, tm.Start())
	t.Cleanup(tm.Stop)
	return tm
}

func TestTimerOnlyDecrementsWhileRunning(t *testing.T) {
	tm := quietTimer(t, 10)

	tm.tick()
	assert.Equal(t, 9, tm.Remaining())

	require.NoError(t, tm.Pause())
	tm.tick()
	tm.tick()
	assert.Equal(t, 9, tm.Remaining(), "paused clock must be frozen")

	require.NoError(t, tm.Resume())
	tm.tick()
	assert.Equal(t, 8, tm.Remaining())
}

func TestTimerExpiresExactlyOnceAtZero(t *testing.T) {
	tm := quietTimer(t, 2)
	var fired atomic.Int32
	tm.SetOnExpire(func() { fired.Add(1) })

	tm.tick()
	tm.tick()
	assert.Equal(t, 0, tm.Remaining(), "reaches exactly zero, never negative")
	assert.Equal(t, TimerExpired, tm.State())

	tm.tick()
	tm.tick()
	assert.Equal(t, 0, tm.Remaining())
	assert.Equal(t, int32(1), fired.Load())
}

func TestTimerIdleUntilExplicitStart(t *testing.T) {
	tm := NewTimer(10, zerolog.Nop())
	assert.Equal(t, TimerIdle, tm.State())

	tm.tick()
	assert.Equal(t, 10, tm.Remaining(), "idle clock never ticks")

	assert.ErrorIs(t, tm.Pause(), ErrTimerNotRunning)
	assert.ErrorIs(t, tm.Resume(), ErrTimerNotPaused)
}

func TestTimerStartTwiceRejected(t *testing.T) {
	tm := quietTimer(t, 5)
	assert.ErrorIs(t, tm.Start(), ErrTimerNotIdle)
}

func TestTimerRestore(t *testing.T) {
	tm := NewTimer(100, zerolog.Nop())
	tm.Restore(40)
	assert.Equal(t, 40, tm.Remaining())
	assert.Equal(t, 100, tm.Total())

	// Restoring more than the total widens the total rather than clamping.
	tm2 := NewTimer(10, zerolog.Nop())
	tm2.Restore(60)
	assert.Equal(t, 60, tm2.Remaining())
	assert.Equal(t, 60, tm2.Total())

	tm2.Restore(-5)
	assert.Equal(t, 0, tm2.Remaining())
}

func TestTimerGraceExtension(t *testing.T) {
	tm := quietTimer(t, 1)
	var fired atomic.Int32
	tm.SetOnExpire(func() { fired.Add(1) })

	tm.tick()
	require.Equal(t, TimerExpired, tm.State())
	require.Equal(t, int32(1), fired.Load())

	tm.Extend(30)
	assert.Equal(t, TimerRunning, tm.State())
	assert.Equal(t, 30, tm.Remaining())

	// The grace countdown raises the signal again when it runs out.
	for i := 0; i < 30; i++ {
		tm.tick()
	}
	assert.Equal(t, TimerExpired, tm.State())
	assert.Equal(t, int32(2), fired.Load())
}

func TestTimerStartWithEmptyClockExpiresImmediately(t *testing.T) {
	tm := NewTimer(0, zerolog.Nop())
	var fired atomic.Int32
	tm.SetOnExpire(func() { fired.Add(1) })

	require.NoError(t, tm.Start())
	assert.Equal(t, TimerExpired, tm.State())
	assert.Equal(t, int32(1), fired.Load())
}

func TestTimerRealTicks(t *testing.T) {
	tm := NewTimer(2, zerolog.Nop())
	tm.interval = 5 * time.Millisecond
	done := make(chan struct{})
	tm.SetOnExpire(func() { close(done) })
	require.NoError(t, tm.Start())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not expire")
	}
	assert.Equal(t, 0, tm.Remaining())
}
