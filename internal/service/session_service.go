package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Crispemo/simulia-session/internal/config"
	"github.com/Crispemo/simulia-session/internal/model"
	"github.com/Crispemo/simulia-session/internal/repository"
	"github.com/Crispemo/simulia-session/session"
)

// Common session errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotOwned = errors.New("session belongs to another user")
	ErrBadEnvelope     = errors.New("progress envelope is malformed")
)

// SessionEvent is published on the monitor channel for every save and
// finalize.
type SessionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	UserID    int       `json:"userId"`
	Status    string    `json:"status"`
	TimeLeft  float64   `json:"timeLeftSeconds"`
	Score     *float64  `json:"score,omitempty"`
	At        time.Time `json:"at"`
}

// Event types published on the monitor channel.
const (
	EventSessionCreated   = "session_created"
	EventProgressSaved    = "progress_saved"
	EventSessionFinalized = "session_finalized"
)

// queuePayload is the unit of work pushed to the persistence queue and
// mirrored into the live hash.
type queuePayload struct {
	SessionID string                    `json:"session_id"`
	UserID    int                       `json:"user_id"`
	Envelope  model.SaveProgressRequest `json:"envelope"`
}

// FinalizeResult carries the outcome of closing a session.
type FinalizeResult struct {
	SessionID string              `json:"sessionId"`
	Results   session.ExamResults `json:"results"`
}

// SessionService handles progress persistence, resume and finalize.
//
// The first save of a session hits PostgreSQL synchronously so the client
// learns its id before any further saves are accepted. Every later save is
// mirrored into a Redis hash for fast resume reads and queued for the save
// worker to flush to PostgreSQL.
type SessionService struct {
	sessionRepo *repository.SessionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessionRepo *repository.SessionRepository, rdb *redis.Client, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

// SaveProgress persists one progress snapshot for the user and returns the
// session id.
func (s *SessionService) SaveProgress(ctx context.Context, userID int, req *model.SaveProgressRequest) (string, error) {
	if req.SessionID == "" {
		return s.createSession(ctx, userID, req)
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return "", fmt.Errorf("%w: bad session id", ErrBadEnvelope)
	}

	payload := queuePayload{SessionID: id.String(), UserID: userID, Envelope: *req}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	// Live mirror first so resume sees the freshest snapshot even while
	// the queue is backed up.
	liveKey := config.CacheKey.SessionLiveKey(id.String())
	if err := s.rdb.HSet(ctx, liveKey, "state", raw, "updated_at", time.Now().Unix()).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", id.String()).Msg("Live mirror write failed")
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistSessionsQueue, raw).Err(); err != nil {
		return "", fmt.Errorf("queue save: %w", err)
	}

	s.publish(ctx, SessionEvent{
		Type:      EventProgressSaved,
		SessionID: id.String(),
		UserID:    userID,
		Status:    string(req.Status),
		TimeLeft:  req.TimeLeftSeconds,
		At:        time.Now(),
	})

	return id.String(), nil
}

// createSession handles the very first save: a synchronous INSERT so the
// generated id travels back on this response.
func (s *SessionService) createSession(ctx context.Context, userID int, req *model.SaveProgressRequest) (string, error) {
	rec := recordFromEnvelope(userID, req)
	if err := s.sessionRepo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	activeKey := config.CacheKey.UserActiveSessionKey(userID)
	if err := s.rdb.Set(ctx, activeKey, rec.ID.String(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Active session key write failed")
	}

	s.publish(ctx, SessionEvent{
		Type:      EventSessionCreated,
		SessionID: rec.ID.String(),
		UserID:    userID,
		Status:    string(req.Status),
		TimeLeft:  req.TimeLeftSeconds,
		At:        time.Now(),
	})

	s.log.Info().
		Str("session_id", rec.ID.String()).
		Int("user_id", userID).
		Str("exam_kind", req.ExamKind).
		Msg("Session created")

	return rec.ID.String(), nil
}

// Resume returns the user's latest unfinished session, if any. The Redis
// live mirror wins over PostgreSQL when present: queued saves may not have
// been flushed yet.
func (s *SessionService) Resume(ctx context.Context, userID int) (*model.SessionRecord, bool, error) {
	activeKey := config.CacheKey.UserActiveSessionKey(userID)

	sessionID, err := s.rdb.Get(ctx, activeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("check active session: %w", err)
	}

	if sessionID != "" {
		if rec, ok := s.resumeFromLive(ctx, userID, sessionID); ok {
			return rec, true, nil
		}
	}

	// Cache miss. Fall back to PostgreSQL as the source of truth.
	rec, err := s.sessionRepo.GetLatestActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	// Self-heal the active key so the next resume is fast.
	_ = s.rdb.Set(ctx, activeKey, rec.ID.String(), 0).Err()

	return rec, true, nil
}

// resumeFromLive reads the live mirror hash and reconstructs a record
// from the last envelope. Returns false on any miss or decode problem.
func (s *SessionService) resumeFromLive(ctx context.Context, userID int, sessionID string) (*model.SessionRecord, bool) {
	liveKey := config.CacheKey.SessionLiveKey(sessionID)
	raw, err := s.rdb.HGet(ctx, liveKey, "state").Result()
	if err != nil {
		return nil, false
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Corrupt live mirror entry")
		return nil, false
	}
	if payload.UserID != userID {
		return nil, false
	}

	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, false
	}

	rec := recordFromEnvelope(userID, &payload.Envelope)
	rec.ID = id
	if rec.Status == model.SessionStatusCompleted {
		return nil, false
	}
	return rec, true
}

// Finalize closes a session exactly once and scores it server-side. A
// repeat call for an already completed session returns the stored result
// without touching the row again.
func (s *SessionService) Finalize(ctx context.Context, userID int, req *model.FinalizeSessionRequest) (*FinalizeResult, error) {
	// A session that never saved gets its row now so there is something
	// to finalize against.
	if req.SessionID == "" {
		id, err := s.createSession(ctx, userID, &req.SaveProgressRequest)
		if err != nil {
			return nil, err
		}
		req.SessionID = id
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad session id", ErrBadEnvelope)
	}

	rec, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec.UserID != userID {
		return nil, ErrSessionNotOwned
	}

	if rec.Status == model.SessionStatusCompleted {
		results, err := ScoreAnswers(rec.Questions, rec.Answers)
		if err != nil {
			return nil, fmt.Errorf("rescore stored session: %w", err)
		}
		return &FinalizeResult{SessionID: id.String(), Results: *results}, nil
	}

	results, err := ScoreAnswers(req.Questions, req.Answers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}

	final := recordFromEnvelope(userID, &req.SaveProgressRequest)
	final.ID = id
	won, err := s.sessionRepo.Finalize(ctx, final, results.Score)
	if err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}
	if !won {
		// Raced with another finalize. Score the winner's stored answers.
		stored, err := s.sessionRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}
		results, err = ScoreAnswers(stored.Questions, stored.Answers)
		if err != nil {
			return nil, fmt.Errorf("rescore stored session: %w", err)
		}
		return &FinalizeResult{SessionID: id.String(), Results: *results}, nil
	}

	s.cleanup(ctx, userID, id.String())

	s.publish(ctx, SessionEvent{
		Type:      EventSessionFinalized,
		SessionID: id.String(),
		UserID:    userID,
		Status:    string(model.SessionStatusCompleted),
		Score:     &results.Score,
		At:        time.Now(),
	})

	s.log.Info().
		Str("session_id", id.String()).
		Int("user_id", userID).
		Float64("score", results.Score).
		Int("correct", results.Correct).
		Msg("Session finalized")

	return &FinalizeResult{SessionID: id.String(), Results: *results}, nil
}

// ListByUser returns all of the user's sessions, newest first.
func (s *SessionService) ListByUser(ctx context.Context, userID int) ([]model.SessionRecord, error) {
	return s.sessionRepo.ListByUser(ctx, userID)
}

// cleanup drops the Redis keys of a finished session.
func (s *SessionService) cleanup(ctx context.Context, userID int, sessionID string) {
	activeKey := config.CacheKey.UserActiveSessionKey(userID)
	liveKey := config.CacheKey.SessionLiveKey(sessionID)
	if err := s.rdb.Del(ctx, activeKey, liveKey).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Redis cleanup failed")
	}
}

func (s *SessionService) publish(ctx context.Context, ev SessionEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.SessionEventsChannel(), raw).Err(); err != nil {
		s.log.Debug().Err(err).Msg("Event publish failed")
	}
}

// recordFromEnvelope maps a progress envelope onto a storable row.
func recordFromEnvelope(userID int, req *model.SaveProgressRequest) *model.SessionRecord {
	doubt := req.DoubtFlags
	if len(doubt) == 0 {
		doubt = json.RawMessage(`{}`)
	}
	return &model.SessionRecord{
		UserID:       userID,
		ExamKind:     req.ExamKind,
		Questions:    req.Questions,
		Answers:      req.Answers,
		DoubtFlags:   doubt,
		TimeLeft:     req.TimeLeftSeconds,
		TotalTime:    req.TotalTimeSeconds,
		CurrentIndex: req.CurrentQuestionIndex,
		Status:       req.Status,
	}
}

// ScoreAnswers grades a canonical answer snapshot against its embedded
// question data. Unanswered slots count against the score: the result is
// correct over total questions.
func ScoreAnswers(rawQuestions, rawAnswers json.RawMessage) (*session.ExamResults, error) {
	var questions []session.Question
	if err := json.Unmarshal(rawQuestions, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	var answers []session.Answer
	if err := json.Unmarshal(rawAnswers, &answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}

	results := &session.ExamResults{}
	total := len(questions)
	if total == 0 {
		total = len(answers)
	}

	for _, a := range answers {
		if !a.Answered() {
			continue
		}
		correct := ""
		if a.QuestionData != nil {
			correct = a.QuestionData.CorrectAnswer
		}
		if correct != "" && a.SelectedAnswer == correct {
			results.Correct++
		} else {
			results.Incorrect++
		}
	}

	results.Unanswered = total - results.Correct - results.Incorrect
	if results.Unanswered < 0 {
		results.Unanswered = 0
	}
	if total > 0 {
		results.Score = float64(results.Correct) / float64(total) * 100
	}
	return results, nil
}
