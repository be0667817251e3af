package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states as stored.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "not_started"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusCompleted  SessionStatus = "completed"
)

// SessionRecord is an exam session row. Questions, answers and doubt
// flags stay as raw jsonb: the resume endpoint returns whatever shape was
// persisted and the client reconciles it.
type SessionRecord struct {
	ID           uuid.UUID       `json:"sessionId"`
	UserID       int             `json:"-"`
	ExamKind     string          `json:"examKind"`
	Questions    json.RawMessage `json:"questions"`
	Answers      json.RawMessage `json:"answers"`
	DoubtFlags   json.RawMessage `json:"doubtFlags"`
	TimeLeft     float64         `json:"timeLeftSeconds"`
	TotalTime    float64         `json:"totalTimeSeconds"`
	CurrentIndex int             `json:"currentQuestionIndex"`
	Status       SessionStatus   `json:"status"`
	Score        *float64        `json:"score,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	FinalizedAt  *time.Time      `json:"finalized_at,omitempty"`
}

// SaveProgressRequest is the progress envelope posted by exam clients.
// Questions and answers are passed through as raw JSON so the stored row
// preserves the client's snapshot byte-for-byte.
type SaveProgressRequest struct {
	SessionID            string          `json:"sessionId"`
	UserID               string          `json:"userId"`
	ExamKind             string          `json:"examKind" binding:"required"`
	Questions            json.RawMessage `json:"questions" binding:"required"`
	Answers              json.RawMessage `json:"answers" binding:"required"`
	TimeLeftSeconds      float64         `json:"timeLeftSeconds"`
	TotalTimeSeconds     float64         `json:"totalTimeSeconds"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex" binding:"min=0"`
	DoubtFlags           json.RawMessage `json:"doubtFlags"`
	Status               SessionStatus   `json:"status" binding:"required,oneof=not_started in_progress paused completed"`
}

// FinalizeSessionRequest is the progress envelope with the final marker.
type FinalizeSessionRequest struct {
	SaveProgressRequest
	Final bool `json:"final"`
}
