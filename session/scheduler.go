package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SaveReason labels why a persistence call was dispatched.
type SaveReason string

const (
	SaveReasonFinalize SaveReason = "finalize"
	SaveReasonUnload   SaveReason = "unload"
	SaveReasonExplicit SaveReason = "explicit"

	saveReasonFirst     SaveReason = "first"
	saveReasonDebounced SaveReason = "debounced"
	saveReasonCoalesced SaveReason = "coalesced"
)

// ErrSaveSuppressed is returned when a save is requested while the
// finalize protocol is in flight.
var ErrSaveSuppressed = errors.New("saving suppressed: finalize in flight")

// DefaultDebounceWindow is the quiet window within which repeated save
// requests collapse into a single persistence call.
const DefaultDebounceWindow = 2 * time.Second

// Scheduler debounces and serializes persistence. Invariants:
//
//   - at most one save is in flight at any time;
//   - the first save of a brand-new session is dispatched immediately and
//     every other save is gated behind its completion, so the
//     server-assigned session id is observed before any update;
//   - a request arriving while a save is in flight is retained as dirty
//     and dispatched once the in-flight save settles, never dropped;
//   - the dirty flag is cleared only by a successful save that covered the
//     latest mutation, never speculatively;
//   - a force save cancels any pending debounce timer and waits out an
//     in-flight save rather than racing it;
//   - once suspended (finalize in flight), no further saves are scheduled.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	// dispatch performs one persistence call with a fresh state snapshot.
	dispatch func(ctx context.Context, reason SaveReason) error

	window    time.Duration
	pending   *time.Timer
	inFlight  bool
	dirty     bool
	gen       uint64 // bumped per mutation
	firstDone bool   // a save has succeeded; session id is known
	suspended bool

	log zerolog.Logger
}

// NewScheduler creates a scheduler around a dispatch function. A zero
// window falls back to DefaultDebounceWindow.
func NewScheduler(window time.Duration, dispatch func(ctx context.Context, reason SaveReason) error, log zerolog.Logger) *Scheduler {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	s := &Scheduler{
		dispatch: dispatch,
		window:   window,
		log:      log.With().Str("component", "save_scheduler").Logger(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// MarkSaved tells the scheduler a session id already exists (restored
// sessions), so the first-save gate does not apply.
func (s *Scheduler) MarkSaved() {
	s.mu.Lock()
	s.firstDone = true
	s.mu.Unlock()
}

// RequestSave records a mutation and schedules a debounced save. Until the
// first save of a new session has succeeded, requests are either dispatched
// immediately (the first) or held behind the in-flight first save.
func (s *Scheduler) RequestSave() {
	s.mu.Lock()
	s.gen++
	s.dirty = true

	if s.suspended {
		s.mu.Unlock()
		return
	}

	if !s.firstDone {
		busy := s.inFlight
		s.mu.Unlock()
		if !busy {
			go s.tryDispatch(saveReasonFirst)
		}
		return
	}

	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(s.window, s.debounceFire)
	s.mu.Unlock()
}

func (s *Scheduler) debounceFire() {
	s.mu.Lock()
	s.pending = nil
	fire := s.dirty && !s.suspended && !s.inFlight
	s.mu.Unlock()
	if fire {
		s.tryDispatch(saveReasonDebounced)
	}
	// If a save is in flight the dirty flag is retained; settle
	// re-dispatches once it completes.
}

// tryDispatch runs one save if the scheduler is quiet and dirty.
func (s *Scheduler) tryDispatch(reason SaveReason) {
	s.mu.Lock()
	if s.inFlight || !s.dirty || s.suspended {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	gen := s.gen
	s.mu.Unlock()

	s.log.Debug().Str("reason", string(reason)).Uint64("generation", gen).Msg("save dispatched")
	err := s.dispatch(context.Background(), reason)
	s.settle(gen, reason, err)
}

func (s *Scheduler) settle(gen uint64, reason SaveReason, err error) {
	s.mu.Lock()
	s.inFlight = false
	var retry bool
	if err == nil {
		s.firstDone = true
		if gen == s.gen {
			s.dirty = false
		}
		retry = s.dirty && !s.suspended && s.pending == nil
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if err != nil {
		// Retained as dirty; the next scheduled or forced save retries.
		s.log.Warn().Err(err).Str("reason", string(reason)).Msg("save failed")
		return
	}
	s.log.Debug().Str("reason", string(reason)).Uint64("generation", gen).Msg("save succeeded")
	if retry {
		go s.tryDispatch(saveReasonCoalesced)
	}
}

// ForceSave bypasses the debounce and executes immediately and
// synchronously. It cancels any pending debounce timer, waits for an
// in-flight save to settle, and then dispatches. With nothing dirty and a
// known session id it is a no-op.
func (s *Scheduler) ForceSave(ctx context.Context, reason SaveReason) error {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.suspended && reason != SaveReasonFinalize {
		s.mu.Unlock()
		return ErrSaveSuppressed
	}
	for s.inFlight {
		s.cond.Wait()
	}
	if !s.dirty && s.firstDone {
		s.mu.Unlock()
		return nil
	}
	if !s.dirty && !s.firstDone {
		// Brand-new session with no mutations: nothing worth a record.
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	gen := s.gen
	s.mu.Unlock()

	s.log.Info().Str("reason", string(reason)).Msg("forced save dispatched")
	err := s.dispatch(ctx, reason)

	s.mu.Lock()
	s.inFlight = false
	if err == nil {
		s.firstDone = true
		if gen == s.gen {
			s.dirty = false
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("reason", string(reason)).Msg("forced save failed")
		return err
	}
	return nil
}

// Suspend stops all further save scheduling; used while the finalize
// protocol is in flight. Pending debounce timers are cancelled.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	s.suspended = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()
}

// Unsuspend re-enables scheduling after a failed finalize so the session
// remains resumable.
func (s *Scheduler) Unsuspend() {
	s.mu.Lock()
	s.suspended = false
	retry := s.dirty && !s.inFlight
	s.mu.Unlock()
	if retry {
		go s.tryDispatch(saveReasonCoalesced)
	}
}

// Dirty reports whether unsaved mutations exist.
func (s *Scheduler) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
