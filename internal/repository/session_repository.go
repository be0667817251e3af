package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Crispemo/simulia-session/internal/model"
)

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new session row and fills in the generated id. The
// first save of a session goes through here synchronously so the client
// learns its id before any further saves are accepted.
func (r *SessionRepository) Create(ctx context.Context, s *model.SessionRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions
		   (user_id, exam_kind, questions, answers, doubt_flags,
		    time_left, total_time, current_index, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		s.UserID, s.ExamKind, s.Questions, s.Answers, s.DoubtFlags,
		s.TimeLeft, s.TotalTime, s.CurrentIndex, s.Status,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// Upsert writes a progress snapshot for a known session id. Completed
// rows are left untouched: a late queued save must not reopen or mutate a
// finalized session.
func (r *SessionRepository) Upsert(ctx context.Context, s *model.SessionRecord) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET questions = $1, answers = $2, doubt_flags = $3,
		     time_left = $4, total_time = $5, current_index = $6,
		     status = $7, updated_at = NOW()
		 WHERE id = $8 AND status <> $9`,
		s.Questions, s.Answers, s.DoubtFlags,
		s.TimeLeft, s.TotalTime, s.CurrentIndex,
		s.Status, s.ID, model.SessionStatusCompleted)
	return err
}

// GetByID retrieves a session row.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SessionRecord, error) {
	s := &model.SessionRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_kind, questions, answers, doubt_flags,
		        time_left, total_time, current_index, status, score,
		        created_at, updated_at, finalized_at
		 FROM exam_sessions
		 WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.ExamKind, &s.Questions, &s.Answers, &s.DoubtFlags,
		&s.TimeLeft, &s.TotalTime, &s.CurrentIndex, &s.Status, &s.Score,
		&s.CreatedAt, &s.UpdatedAt, &s.FinalizedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetLatestActiveByUser retrieves the user's most recently updated
// unfinished session, for resume.
func (r *SessionRepository) GetLatestActiveByUser(ctx context.Context, userID int) (*model.SessionRecord, error) {
	s := &model.SessionRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_kind, questions, answers, doubt_flags,
		        time_left, total_time, current_index, status, score,
		        created_at, updated_at, finalized_at
		 FROM exam_sessions
		 WHERE user_id = $1 AND status <> $2
		 ORDER BY updated_at DESC
		 LIMIT 1`, userID, model.SessionStatusCompleted,
	).Scan(&s.ID, &s.UserID, &s.ExamKind, &s.Questions, &s.Answers, &s.DoubtFlags,
		&s.TimeLeft, &s.TotalTime, &s.CurrentIndex, &s.Status, &s.Score,
		&s.CreatedAt, &s.UpdatedAt, &s.FinalizedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Finalize marks a session completed with its score. Only rows not yet
// completed are affected; the returned flag reports whether this call won
// the transition.
func (r *SessionRepository) Finalize(ctx context.Context, s *model.SessionRecord, score float64) (bool, error) {
	now := time.Now()
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET questions = $1, answers = $2, doubt_flags = $3,
		     time_left = $4, total_time = $5, current_index = $6,
		     status = $7, score = $8, finalized_at = $9, updated_at = NOW()
		 WHERE id = $10 AND status <> $7`,
		s.Questions, s.Answers, s.DoubtFlags,
		s.TimeLeft, s.TotalTime, s.CurrentIndex,
		model.SessionStatusCompleted, score, now, s.ID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser retrieves all of a user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int) ([]model.SessionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, exam_kind, questions, answers, doubt_flags,
		        time_left, total_time, current_index, status, score,
		        created_at, updated_at, finalized_at
		 FROM exam_sessions
		 WHERE user_id = $1
		 ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SessionRecord
	for rows.Next() {
		var s model.SessionRecord
		if err := rows.Scan(&s.ID, &s.UserID, &s.ExamKind, &s.Questions, &s.Answers, &s.DoubtFlags,
			&s.TimeLeft, &s.TotalTime, &s.CurrentIndex, &s.Status, &s.Score,
			&s.CreatedAt, &s.UpdatedAt, &s.FinalizedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
