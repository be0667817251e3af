package session

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned for answer, doubt, or navigation requests
// outside the loaded question range. Out-of-range navigation is rejected,
// never clamped.
var ErrIndexOutOfRange = errors.New("question index out of range")

// Store is the single authoritative in-memory representation of a session's
// answers, doubt marks, and navigation cursor. The keyed answer index and
// the doubt map are derived views computed on demand, not separately
// maintained copies.
//
// Store is not safe for concurrent use; the Engine serializes access.
type Store struct {
	questions []Question
	answers   []Answer
	current   int
	policy    KindPolicy
	onMutate  func()
}

// NewStore creates a store over an ordered question list. The answer slice
// is index-aligned with the questions; every slot starts unanswered but
// carries its question key so persisted records stay addressable.
func NewStore(questions []Question, policy KindPolicy) *Store {
	s := &Store{
		questions: questions,
		answers:   make([]Answer, len(questions)),
		policy:    policy,
	}
	for i := range questions {
		s.answers[i] = Answer{QuestionID: QuestionKey(&questions[i], i)}
	}
	return s
}

// SetOnMutate registers the callback invoked after every mutating call.
// The Engine uses it to mark the session dirty and schedule a save.
func (s *Store) SetOnMutate(fn func()) { s.onMutate = fn }

// SetAnswer records a selection for the question at index. It is an
// idempotent toggle: repeating the currently-selected value clears the
// answer, any other value replaces it. The full Answer record, including a
// fresh question snapshot, is rebuilt on every call.
func (s *Store) SetAnswer(index int, rawSelection any) error {
	if index < 0 || index >= len(s.questions) {
		return fmt.Errorf("set answer at %d: %w", index, ErrIndexOutOfRange)
	}

	prev := s.answers[index]
	next := BuildAnswer(&s.questions[index], index, rawSelection)

	if next.Answered() && next.SelectedAnswer == prev.SelectedAnswer {
		// Toggle off: same value selected again. The snapshot stays
		// populated so the record remains durable.
		next.SelectedAnswer = ""
		next.IsCorrect = nil
	}

	next.MarkedAsDoubt = prev.MarkedAsDoubt
	if next.Answered() && s.policy.AnswerClearsDoubt {
		next.MarkedAsDoubt = false
	}

	s.answers[index] = next
	s.mutated()
	return nil
}

// SetDoubt marks or unmarks a question for review. It never creates or
// clears a selection. If the slot has no snapshot yet (doubt set before any
// answer), one is populated so the invariant holds: after any mutating
// call, the Answer at that index has complete questionData.
func (s *Store) SetDoubt(index int, flag bool) error {
	if index < 0 || index >= len(s.questions) {
		return fmt.Errorf("set doubt at %d: %w", index, ErrIndexOutOfRange)
	}

	a := s.answers[index]
	if a.QuestionData == nil {
		a.QuestionData = Snapshot(&s.questions[index], index)
		a.QuestionID = a.QuestionData.QuestionID
	}
	a.MarkedAsDoubt = flag
	s.answers[index] = a
	s.mutated()
	return nil
}

// Navigate moves the cursor to index. Out-of-range requests are rejected.
func (s *Store) Navigate(index int) error {
	if index < 0 || index >= len(s.questions) {
		return fmt.Errorf("navigate to %d: %w", index, ErrIndexOutOfRange)
	}
	s.current = index
	s.mutated()
	return nil
}

// Current returns the navigation cursor.
func (s *Store) Current() int { return s.current }

// Len returns the number of questions.
func (s *Store) Len() int { return len(s.questions) }

// Question returns the source question at index.
func (s *Store) Question(index int) (Question, error) {
	if index < 0 || index >= len(s.questions) {
		return Question{}, fmt.Errorf("question at %d: %w", index, ErrIndexOutOfRange)
	}
	return s.questions[index], nil
}

// Answer returns a copy of the answer record at index.
func (s *Store) Answer(index int) (Answer, error) {
	if index < 0 || index >= len(s.answers) {
		return Answer{}, fmt.Errorf("answer at %d: %w", index, ErrIndexOutOfRange)
	}
	return s.answers[index], nil
}

// Answers returns a copy of the ordered answer sequence, suitable for
// copy-on-send persistence.
func (s *Store) Answers() []Answer {
	out := make([]Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Questions returns the ordered source question list.
func (s *Store) Questions() []Question {
	out := make([]Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// AnswerIndex is the derived keyed view over the answers.
func (s *Store) AnswerIndex() map[string]Answer {
	idx := make(map[string]Answer, len(s.answers))
	for _, a := range s.answers {
		idx[a.QuestionID] = a
	}
	return idx
}

// DoubtFlags is the derived doubt-only keyed view.
func (s *Store) DoubtFlags() map[string]bool {
	flags := make(map[string]bool)
	for _, a := range s.answers {
		if a.MarkedAsDoubt {
			flags[a.QuestionID] = true
		}
	}
	return flags
}

// restore loads reconciled answers and cursor without firing mutation
// callbacks. Missing or misaligned entries keep their fresh defaults.
func (s *Store) restore(answers []Answer, current int) {
	for i := range s.answers {
		if i < len(answers) && answers[i].QuestionData != nil {
			s.answers[i] = answers[i]
		}
	}
	if current >= 0 && current < len(s.questions) {
		s.current = current
	}
}

func (s *Store) mutated() {
	if s.onMutate != nil {
		s.onMutate()
	}
}
