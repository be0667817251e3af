package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Engine errors surfaced to the UI layer.
var (
	// ErrSessionCompleted rejects mutations after finalize; completed
	// sessions are immutable.
	ErrSessionCompleted = errors.New("session is already completed")
	// ErrPauseNotAllowed is returned for kinds whose policy disallows
	// pausing. It is a rejection with an explanation, not a state change.
	ErrPauseNotAllowed = errors.New("this exam kind cannot be paused")
	// ErrFinalizeInFlight rejects a finalize overlapping another.
	ErrFinalizeInFlight = errors.New("finalize already in flight")
)

// Config configures an Engine.
type Config struct {
	UserID string
	Kind   ExamKind
	// Policy overrides PolicyFor(Kind) when non-nil.
	Policy *KindPolicy
	// TotalTimeSeconds overrides the policy default when positive.
	TotalTimeSeconds int
	// DebounceWindow overrides DefaultDebounceWindow when positive.
	DebounceWindow time.Duration
	Logger         zerolog.Logger
}

func (c Config) policy() KindPolicy {
	if c.Policy != nil {
		return *c.Policy
	}
	return PolicyFor(c.Kind)
}

// Engine drives one exam session: it owns the answer store, the countdown
// timer and the save scheduler, and runs the finalize protocol against the
// transport. All mutations flow through the engine, which serializes them.
type Engine struct {
	mu sync.Mutex

	userID string
	kind   ExamKind
	policy KindPolicy

	store *Store
	timer *Timer
	sched *Scheduler
	tr    Transport

	sessionID  string
	status     Status
	finalized  bool
	finalizing bool
	graceUsed  bool
	result     *FinalizeResponse

	log zerolog.Logger
}

// New creates an engine for a fresh session over an ordered question list.
// The session has no id until its first successful save.
func New(cfg Config, questions []Question, tr Transport) *Engine {
	policy := cfg.policy()
	total := cfg.TotalTimeSeconds
	if total <= 0 {
		total = policy.DefaultDurationSeconds
	}

	log := cfg.Logger.With().
		Str("component", "session_engine").
		Str("exam_kind", string(cfg.Kind)).
		Logger()

	e := &Engine{
		userID: cfg.UserID,
		kind:   cfg.Kind,
		policy: policy,
		store:  NewStore(questions, policy),
		timer:  NewTimer(total, log),
		tr:     tr,
		status: StatusNotStarted,
		log:    log,
	}
	e.sched = NewScheduler(cfg.DebounceWindow, e.dispatchSave, log)
	e.store.SetOnMutate(e.sched.RequestSave)
	e.timer.SetOnExpire(e.onExpire)
	return e
}

// Resume fetches the user's persisted session and builds an engine from it.
// The second return is false when the server has nothing to resume; the
// caller then constructs a fresh engine with New. The clock is never
// auto-started, even for sessions that were in progress server-side: it
// only runs after an explicit Start.
func Resume(ctx context.Context, cfg Config, tr Transport) (*Engine, bool, error) {
	resp, err := tr.FetchSession(ctx, cfg.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("resume session: %w", err)
	}
	if !resp.Found || resp.Session == nil {
		return nil, false, nil
	}

	sess := Reconcile(resp.Session, cfg.Logger)
	if sess.Status == StatusCompleted {
		// Nothing to continue; the caller starts fresh.
		return nil, false, nil
	}

	if cfg.Kind == "" {
		cfg.Kind = sess.Kind
	}
	cfg.TotalTimeSeconds = sess.TotalTimeSeconds

	e := New(cfg, sess.Questions, tr)
	e.sessionID = sess.SessionID
	e.status = sess.Status
	e.timer.Restore(sess.TimeLeftSeconds)
	e.store.restore(sess.Answers, sess.CurrentQuestionIndex)
	if sess.SessionID != "" {
		e.sched.MarkSaved()
	}
	e.log.Info().
		Str("session_id", sess.SessionID).
		Int("seconds_left", sess.TimeLeftSeconds).
		Msg("session restored")
	return e, true, nil
}

// Start begins (or continues, for a restored session) the exam after the
// user's explicit confirmation. Only Start runs the clock.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		return ErrSessionCompleted
	}
	e.status = StatusInProgress
	e.mu.Unlock()

	if err := e.timer.Start(); err != nil && !errors.Is(err, ErrTimerNotIdle) {
		return err
	}
	e.log.Info().Msg("session started")
	return nil
}

// Pause freezes the clock for kinds that allow it. For kinds that do not,
// it returns ErrPauseNotAllowed and changes nothing; the UI explains.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		return ErrSessionCompleted
	}
	if !e.policy.AllowPause {
		e.mu.Unlock()
		return ErrPauseNotAllowed
	}
	e.mu.Unlock()

	if err := e.timer.Pause(); err != nil {
		return err
	}
	e.mu.Lock()
	e.status = StatusPaused
	e.mu.Unlock()
	e.sched.RequestSave()
	return nil
}

// Resume continues a paused session.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		return ErrSessionCompleted
	}
	e.mu.Unlock()

	if err := e.timer.Resume(); err != nil {
		return err
	}
	e.mu.Lock()
	e.status = StatusInProgress
	e.mu.Unlock()
	e.sched.RequestSave()
	return nil
}

// SetAnswer records a selection; same-value repeats toggle the answer off.
func (e *Engine) SetAnswer(index int, rawSelection any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return ErrSessionCompleted
	}
	return e.store.SetAnswer(index, rawSelection)
}

// SetDoubt marks or unmarks a question for review.
func (e *Engine) SetDoubt(index int, flag bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return ErrSessionCompleted
	}
	return e.store.SetDoubt(index, flag)
}

// Navigate moves the question cursor; out-of-range requests are rejected.
func (e *Engine) Navigate(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return ErrSessionCompleted
	}
	return e.store.Navigate(index)
}

// Finalize runs the one-way completion protocol: flush pending dirty state
// with a blocking save, send the complete session to the finalize endpoint,
// and mark the session immutable on success. On failure one ordinary
// progress save is attempted as fallback and the session stays resumable.
// Calling Finalize on a completed session returns the stored result.
func (e *Engine) Finalize(ctx context.Context) (*FinalizeResponse, error) {
	e.mu.Lock()
	if e.finalized {
		result := e.result
		e.mu.Unlock()
		e.log.Debug().Msg("finalize ignored: session already completed")
		return result, nil
	}
	if e.finalizing {
		e.mu.Unlock()
		return nil, ErrFinalizeInFlight
	}
	e.finalizing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.finalizing = false
		e.mu.Unlock()
	}()

	// No save may race the finalize from here on.
	e.sched.Suspend()

	if err := e.sched.ForceSave(ctx, SaveReasonFinalize); err != nil {
		// The finalize envelope carries the full session anyway; a failed
		// flush is not fatal.
		e.log.Warn().Err(err).Msg("pre-finalize flush failed")
	}

	req := &FinalizeRequest{SaveRequest: e.snapshot(), Final: true}
	req.Status = StatusCompleted

	resp, err := e.tr.Finalize(ctx, req)
	if err != nil {
		e.log.Error().Err(err).Msg("finalize failed, attempting fallback save")
		fallback := e.snapshot()
		if _, saveErr := e.tr.SaveProgress(ctx, &fallback); saveErr != nil {
			e.log.Error().Err(saveErr).Msg("fallback save failed")
		}
		e.sched.Unsuspend()
		return nil, fmt.Errorf("finalize session: %w", err)
	}

	e.mu.Lock()
	e.finalized = true
	e.status = StatusCompleted
	if e.sessionID == "" {
		e.sessionID = resp.SessionID
	}
	e.result = resp
	e.mu.Unlock()

	e.timer.Stop()
	e.log.Info().
		Str("session_id", resp.SessionID).
		Float64("score", resp.Results.Score).
		Msg("session finalized")
	return resp, nil
}

// Flush performs the best-effort blocking save for page teardown. It is the
// last-resort path, not the primary persistence mechanism.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	done := e.finalized
	e.mu.Unlock()
	if done {
		return nil
	}
	return e.sched.ForceSave(ctx, SaveReasonUnload)
}

// onExpire handles the timer's expiry signal according to the kind policy:
// either a single grace extension or a forced finalize. Expiry is a normal
// transition, not an error.
func (e *Engine) onExpire() {
	e.mu.Lock()
	if e.finalized || e.finalizing {
		e.mu.Unlock()
		return
	}
	grace := e.policy.OnExpire == ExpireGrantGrace && !e.graceUsed && e.policy.GraceSeconds > 0
	if grace {
		e.graceUsed = true
	}
	e.mu.Unlock()

	if grace {
		e.log.Info().Int("grace_seconds", e.policy.GraceSeconds).Msg("time expired, granting grace window")
		e.timer.Extend(e.policy.GraceSeconds)
		return
	}

	e.log.Info().Msg("time expired, forcing finalize")
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
	defer cancel()
	if _, err := e.Finalize(ctx); err != nil {
		e.log.Error().Err(err).Msg("forced finalize failed")
	}
}

// dispatchSave is the scheduler's dispatch function: snapshot under lock,
// send, and record the server-assigned id from the first successful save.
func (e *Engine) dispatchSave(ctx context.Context, reason SaveReason) error {
	req := e.snapshot()
	resp, err := e.tr.SaveProgress(ctx, &req)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.sessionID == "" && resp.SessionID != "" {
		e.sessionID = resp.SessionID
		e.log.Info().Str("session_id", resp.SessionID).Msg("session id assigned")
	}
	e.mu.Unlock()
	return nil
}

// snapshot builds a copy-on-send save envelope so a dispatched save never
// observes a half-mutated session.
func (e *Engine) snapshot() SaveRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SaveRequest{
		SessionID:            e.sessionID,
		UserID:               e.userID,
		ExamKind:             e.kind,
		Questions:            e.store.Questions(),
		Answers:              e.store.Answers(),
		TimeLeftSeconds:      e.timer.Remaining(),
		TotalTimeSeconds:     e.timer.Total(),
		CurrentQuestionIndex: e.store.Current(),
		DoubtFlags:           e.store.DoubtFlags(),
		Status:               e.status,
	}
}

// ─── Read-only accessors ───────────────────────────────────────────────────

// SessionID returns the server-assigned id, or "" before the first save.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Status returns the session's lifecycle status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// TimeLeft returns the seconds remaining on the clock.
func (e *Engine) TimeLeft() int { return e.timer.Remaining() }

// TimerState exposes the clock state machine's current state.
func (e *Engine) TimerState() TimerState { return e.timer.State() }

// CurrentIndex returns the navigation cursor.
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Current()
}

// Answer returns a copy of the answer at index.
func (e *Engine) Answer(index int) (Answer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Answer(index)
}

// Answers returns a copy of the ordered answer sequence.
func (e *Engine) Answers() []Answer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Answers()
}

// AnswerIndex returns the derived keyed view over the answers.
func (e *Engine) AnswerIndex() map[string]Answer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.AnswerIndex()
}

// DoubtFlags returns the derived doubt-only keyed view.
func (e *Engine) DoubtFlags() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.DoubtFlags()
}

// Result returns the finalize result, nil until the session completes.
func (e *Engine) Result() *FinalizeResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Dirty reports whether unsaved mutations exist.
func (e *Engine) Dirty() bool { return e.sched.Dirty() }
