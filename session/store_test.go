package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuestions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{
			Text:    "question",
			Options: []string{"A", "B", "C", "D"},
			Answer:  AnswerRef{Text: "B"},
		}
	}
	return qs
}

func TestSetAnswerToggleIdempotence(t *testing.T) {
	s := NewStore(testQuestions(3), PolicyFor(KindCustomSelection))

	require.NoError(t, s.SetAnswer(0, "B"))
	a, err := s.Answer(0)
	require.NoError(t, err)
	assert.Equal(t, "B", a.SelectedAnswer)

	// Same value again clears the answer.
	require.NoError(t, s.SetAnswer(0, "B"))
	a, _ = s.Answer(0)
	assert.False(t, a.Answered())
	assert.NotNil(t, a.QuestionData, "snapshot survives a toggle-off")

	// A different value replaces, never appends.
	require.NoError(t, s.SetAnswer(0, "A"))
	require.NoError(t, s.SetAnswer(0, "C"))
	a, _ = s.Answer(0)
	assert.Equal(t, "C", a.SelectedAnswer)
}

func TestSetAnswerNormalizesAllForms(t *testing.T) {
	s := NewStore(testQuestions(1), PolicyFor(KindCustomSelection))

	require.NoError(t, s.SetAnswer(0, 1))
	a, _ := s.Answer(0)
	assert.Equal(t, "B", a.SelectedAnswer)

	// option_2 is the same option; toggle clears it.
	require.NoError(t, s.SetAnswer(0, "option_2"))
	a, _ = s.Answer(0)
	assert.False(t, a.Answered())
}

func TestSetDoubtIndependentOfAnswer(t *testing.T) {
	s := NewStore(testQuestions(2), PolicyFor(KindErrorReview))

	require.NoError(t, s.SetDoubt(0, true))
	a, _ := s.Answer(0)
	assert.True(t, a.MarkedAsDoubt)
	assert.False(t, a.Answered(), "doubt must not create an answer")
	require.NotNil(t, a.QuestionData, "doubt populates the snapshot")

	require.NoError(t, s.SetAnswer(0, "A"))
	require.NoError(t, s.SetDoubt(0, false))
	a, _ = s.Answer(0)
	assert.Equal(t, "A", a.SelectedAnswer, "clearing doubt must not clear the answer")
}

func TestAnswerClearsDoubtPolicyBranches(t *testing.T) {
	// Timed kinds clear the doubt mark on answering.
	clearing := NewStore(testQuestions(1), PolicyFor(KindTimed))
	require.NoError(t, clearing.SetDoubt(0, true))
	require.NoError(t, clearing.SetAnswer(0, "A"))
	a, _ := clearing.Answer(0)
	assert.False(t, a.MarkedAsDoubt)

	// Review kinds preserve it.
	preserving := NewStore(testQuestions(1), PolicyFor(KindErrorReview))
	require.NoError(t, preserving.SetDoubt(0, true))
	require.NoError(t, preserving.SetAnswer(0, "A"))
	a, _ = preserving.Answer(0)
	assert.True(t, a.MarkedAsDoubt)

	// Toggling an answer off never drops the mark, whatever the policy.
	require.NoError(t, clearing.SetDoubt(0, true))
	require.NoError(t, clearing.SetAnswer(0, "A"))
	a, _ = clearing.Answer(0)
	assert.False(t, a.Answered())
	assert.True(t, a.MarkedAsDoubt)
}

func TestNavigateRejectsOutOfRange(t *testing.T) {
	s := NewStore(testQuestions(3), PolicyFor(KindTimed))

	require.NoError(t, s.Navigate(2))
	assert.Equal(t, 2, s.Current())

	assert.ErrorIs(t, s.Navigate(3), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Navigate(-1), ErrIndexOutOfRange)
	assert.Equal(t, 2, s.Current(), "rejected navigation must not move the cursor")
}

func TestMutationBoundsChecked(t *testing.T) {
	s := NewStore(testQuestions(1), PolicyFor(KindTimed))
	assert.ErrorIs(t, s.SetAnswer(5, "A"), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetDoubt(-1, true), ErrIndexOutOfRange)
}

func TestDerivedViews(t *testing.T) {
	qs := testQuestions(3)
	qs[0].ID = "q-alpha"
	s := NewStore(qs, PolicyFor(KindErrorReview))

	require.NoError(t, s.SetAnswer(0, "B"))
	require.NoError(t, s.SetDoubt(1, true))

	idx := s.AnswerIndex()
	assert.Equal(t, "B", idx["q-alpha"].SelectedAnswer)
	assert.Contains(t, idx, "question_1")
	assert.Contains(t, idx, "question_2")

	flags := s.DoubtFlags()
	assert.Equal(t, map[string]bool{"question_1": true}, flags)
}

func TestOnMutateFiresPerMutation(t *testing.T) {
	s := NewStore(testQuestions(2), PolicyFor(KindTimed))
	count := 0
	s.SetOnMutate(func() { count++ })

	require.NoError(t, s.SetAnswer(0, "A"))
	require.NoError(t, s.SetDoubt(1, true))
	require.NoError(t, s.Navigate(1))
	assert.Equal(t, 3, count)

	// Rejected calls must not mark anything dirty.
	_ = s.Navigate(9)
	assert.Equal(t, 3, count)
}
