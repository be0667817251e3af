package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TimerState enumerates the countdown clock's states.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerRunning
	TimerPaused
	TimerExpired
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerRunning:
		return "running"
	case TimerPaused:
		return "paused"
	case TimerExpired:
		return "expired"
	}
	return "unknown"
}

// Timer errors.
var (
	ErrTimerNotIdle    = errors.New("timer already started")
	ErrTimerNotRunning = errors.New("timer is not running")
	ErrTimerNotPaused  = errors.New("timer is not paused")
)

// Timer is the per-session countdown clock. Running is the only state in
// which a tick decrements the remaining time; the transition to Expired
// fires the expire callback exactly once per countdown and never drops the
// counter below zero. The clock never starts on its own; Start is an
// explicit call, even for restored sessions.
type Timer struct {
	mu       sync.Mutex
	state    TimerState
	total    int
	left     int
	interval time.Duration
	onExpire func()
	cancel   context.CancelFunc
	log      zerolog.Logger
}

// NewTimer creates an idle timer with totalSeconds on the clock.
func NewTimer(totalSeconds int, log zerolog.Logger) *Timer {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return &Timer{
		state:    TimerIdle,
		total:    totalSeconds,
		left:     totalSeconds,
		interval: time.Second,
		log:      log.With().Str("component", "timer").Logger(),
	}
}

// SetOnExpire registers the expiry signal. The callback runs outside the
// timer's lock, exactly once per countdown.
func (t *Timer) SetOnExpire(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Restore sets the remaining time from a reconciled session. Only valid
// while idle; the reconciler guarantees the value is sane.
func (t *Timer) Restore(leftSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerIdle {
		return
	}
	if leftSeconds < 0 {
		leftSeconds = 0
	}
	if leftSeconds > t.total {
		t.total = leftSeconds
	}
	t.left = leftSeconds
}

// Start moves Idle → Running and begins ticking.
func (t *Timer) Start() error {
	t.mu.Lock()
	if t.state != TimerIdle {
		t.mu.Unlock()
		return ErrTimerNotIdle
	}
	if t.left <= 0 {
		// Nothing on the clock; expire immediately rather than running.
		t.state = TimerExpired
		fn := t.onExpire
		t.mu.Unlock()
		t.log.Info().Msg("timer started with empty clock, expiring")
		if fn != nil {
			fn()
		}
		return nil
	}
	t.state = TimerRunning
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	interval := t.interval
	t.mu.Unlock()

	t.log.Debug().Int("seconds_left", t.Remaining()).Msg("timer started")
	go t.loop(ctx, interval)
	return nil
}

// Pause freezes the countdown. The tick goroutine keeps running; ticks are
// ignored while paused so Resume is cheap and race-free.
func (t *Timer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerRunning {
		return ErrTimerNotRunning
	}
	t.state = TimerPaused
	t.log.Debug().Int("seconds_left", t.left).Msg("timer paused")
	return nil
}

// Resume continues a paused countdown.
func (t *Timer) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerPaused {
		return ErrTimerNotPaused
	}
	t.state = TimerRunning
	t.log.Debug().Int("seconds_left", t.left).Msg("timer resumed")
	return nil
}

// Extend puts extra seconds on the clock after expiry (the grace window)
// and re-enters Running. A later expiry fires the signal again.
func (t *Timer) Extend(seconds int) {
	t.mu.Lock()
	if t.state != TimerExpired || seconds <= 0 {
		t.mu.Unlock()
		return
	}
	t.left = seconds
	t.total += seconds
	t.state = TimerRunning
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	interval := t.interval
	t.mu.Unlock()

	t.log.Info().Int("grace_seconds", seconds).Msg("grace window granted")
	go t.loop(ctx, interval)
}

// Stop halts the tick goroutine. Terminal; used at finalize and teardown.
func (t *Timer) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Remaining returns the seconds left on the clock.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left
}

// Total returns the full duration, including any grace extension.
func (t *Timer) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// State returns the current timer state.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.tick() {
				return
			}
		}
	}
}

// tick decrements one second while running. Returns true once expired so
// the loop goroutine exits.
func (t *Timer) tick() bool {
	t.mu.Lock()
	if t.state != TimerRunning {
		done := t.state == TimerExpired
		t.mu.Unlock()
		return done
	}
	t.left--
	if t.left > 0 {
		t.mu.Unlock()
		return false
	}
	t.left = 0
	t.state = TimerExpired
	fn := t.onExpire
	t.mu.Unlock()

	t.log.Info().Msg("timer expired")
	if fn != nil {
		fn()
	}
	return true
}
