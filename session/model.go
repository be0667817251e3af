// Package session implements the exam-session engine: a countdown timer
// state machine, a single authoritative answer store, a debounced save
// scheduler, a resume reconciler for historical persisted shapes, and the
// one-shot finalize protocol. The engine talks to the persistence backend
// through the Transport interface.
package session

import (
	"encoding/json"
	"strconv"
)

// ExamKind selects the behavioral policy of a session.
type ExamKind string

const (
	KindTimed             ExamKind = "timed"
	KindUntimedSimulation ExamKind = "untimed_simulation"
	KindProtocolSet       ExamKind = "protocol_set"
	KindErrorReview       ExamKind = "error_review"
	KindCustomSelection   ExamKind = "custom_selection"
)

// Status enumerates the lifecycle states of a session.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

func (s Status) valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// ExpiryAction is what the engine does when the clock reaches zero.
type ExpiryAction string

const (
	ExpireForceFinalize ExpiryAction = "force_finalize"
	ExpireGrantGrace    ExpiryAction = "grant_grace"
)

// KindPolicy holds the per-kind behavioral switches. The doubt-clearing
// and pause rules vary between kinds, so they are named configuration
// rather than scattered conditionals.
type KindPolicy struct {
	AllowPause bool
	// OnExpire decides whether expiry forces the finalize protocol or
	// grants one grace extension of GraceSeconds first.
	OnExpire     ExpiryAction
	GraceSeconds int
	// AnswerClearsDoubt makes selecting an answer drop an existing
	// doubt mark on the same question.
	AnswerClearsDoubt      bool
	DefaultDurationSeconds int
}

// PolicyFor returns the default policy for an exam kind.
func PolicyFor(kind ExamKind) KindPolicy {
	switch kind {
	case KindTimed:
		return KindPolicy{
			AllowPause:             false,
			OnExpire:               ExpireForceFinalize,
			AnswerClearsDoubt:      true,
			DefaultDurationSeconds: 3 * 3600,
		}
	case KindProtocolSet:
		return KindPolicy{
			AllowPause:             false,
			OnExpire:               ExpireForceFinalize,
			AnswerClearsDoubt:      true,
			DefaultDurationSeconds: 2 * 3600,
		}
	case KindUntimedSimulation:
		return KindPolicy{
			AllowPause:             true,
			OnExpire:               ExpireGrantGrace,
			GraceSeconds:           60,
			AnswerClearsDoubt:      false,
			DefaultDurationSeconds: 6 * 3600,
		}
	case KindErrorReview:
		return KindPolicy{
			AllowPause:             true,
			OnExpire:               ExpireGrantGrace,
			GraceSeconds:           60,
			AnswerClearsDoubt:      false,
			DefaultDurationSeconds: 2 * 3600,
		}
	default: // KindCustomSelection and anything unrecognized
		return KindPolicy{
			AllowPause:             true,
			OnExpire:               ExpireGrantGrace,
			GraceSeconds:           60,
			AnswerClearsDoubt:      false,
			DefaultDurationSeconds: 4 * 3600,
		}
	}
}

// AnswerRef is a question's correct-answer reference as it arrives from the
// question supply: either an option index or the literal option text. Both
// forms occur in stored data; consumers normalize through CorrectText.
type AnswerRef struct {
	Index   int
	IsIndex bool
	Text    string
}

// UnmarshalJSON accepts a JSON number (option index) or string.
func (a *AnswerRef) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		a.Index = n
		a.IsIndex = true
		a.Text = ""
		return nil
	}
	a.IsIndex = false
	return json.Unmarshal(b, &a.Text)
}

// MarshalJSON emits the form the reference arrived in.
func (a AnswerRef) MarshalJSON() ([]byte, error) {
	if a.IsIndex {
		return []byte(strconv.Itoa(a.Index)), nil
	}
	return json.Marshal(a.Text)
}

// IsZero reports whether no reference is present at all.
func (a AnswerRef) IsZero() bool {
	return !a.IsIndex && a.Text == ""
}

// Question is a read-only item supplied by the question bank. Two wire
// layouts occur: flat option_1..option_5 fields, or an options array. Only
// whichever layout is present first is authoritative; they are never merged.
type Question struct {
	ID          string    `json:"id,omitempty"`
	Text        string    `json:"question"`
	Option1     string    `json:"option_1,omitempty"`
	Option2     string    `json:"option_2,omitempty"`
	Option3     string    `json:"option_3,omitempty"`
	Option4     string    `json:"option_4,omitempty"`
	Option5     string    `json:"option_5,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Answer      AnswerRef `json:"answer,omitempty"`
	Category    string    `json:"category,omitempty"`
	ImageURL    string    `json:"image,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
}

// QuestionSnapshot is the denormalized copy of a question embedded in every
// Answer at the moment the answer is created. It is what makes persisted
// sessions reviewable after the question bank changes.
type QuestionSnapshot struct {
	QuestionID    string    `json:"questionId"`
	Text          string    `json:"question"`
	Options       [5]string `json:"options"`
	CorrectAnswer string    `json:"correctAnswer,omitempty"`
	Category      string    `json:"category,omitempty"`
	ImageURL      string    `json:"image,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
}

// Answer is one question's mutable state inside the store.
//
// SelectedAnswer is always the literal option text (the canonical form);
// index and option_N selections are normalized away at the snapshot
// formatter boundary. Empty string means unanswered.
//
// IsCorrect is a heuristic for immediate UI feedback only and is never
// trusted for grading; the server scores authoritatively at finalize.
type Answer struct {
	QuestionID     string            `json:"questionId"`
	SelectedAnswer string            `json:"selectedAnswer"`
	IsCorrect      *bool             `json:"isCorrect,omitempty"`
	MarkedAsDoubt  bool              `json:"markedAsDoubt"`
	QuestionData   *QuestionSnapshot `json:"questionData"`
}

// Answered reports whether a selection is present.
func (a Answer) Answered() bool { return a.SelectedAnswer != "" }

// ExamSession is the reconciled state of one exam attempt. It is produced
// by the resume reconciler and consumed when constructing an Engine; during
// a live session the Engine and its Store own the state.
type ExamSession struct {
	SessionID            string
	UserID               string
	Kind                 ExamKind
	Status               Status
	TotalTimeSeconds     int
	TimeLeftSeconds      int
	CurrentQuestionIndex int
	Questions            []Question
	Answers              []Answer
}
