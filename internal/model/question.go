package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionRecord is a bank question row. Options are stored as a jsonb
// array; the correct answer is the literal option text.
type QuestionRecord struct {
	ID            uuid.UUID `json:"id"`
	Text          string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"correctAnswer"`
	Category      string    `json:"category,omitempty"`
	ImageURL      string    `json:"image,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateQuestionRequest is the payload for adding a bank question.
type CreateQuestionRequest struct {
	Text          string   `json:"question" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2,max=5,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" binding:"required"`
	Category      string   `json:"category"`
	ImageURL      string   `json:"image"`
	Explanation   string   `json:"explanation"`
}
