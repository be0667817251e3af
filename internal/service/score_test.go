package service

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAnswers(t *testing.T, entries ...map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	return raw
}

func snapshotQuestions(t *testing.T, n int) json.RawMessage {
	t.Helper()
	questions := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, map[string]any{
			"id":       fmt.Sprintf("q%d", i+1),
			"question": "Question",
			"options":  []string{"A", "B", "C", "D"},
			"answer":   "B",
		})
	}
	raw, err := json.Marshal(questions)
	require.NoError(t, err)
	return raw
}

func answerEntry(qid, selected, correct string) map[string]any {
	entry := map[string]any{
		"questionId":     qid,
		"selectedAnswer": selected,
	}
	if correct != "" {
		entry["questionData"] = map[string]any{
			"questionId":    qid,
			"question":      "Question",
			"options":       []string{"A", "B", "C", "D", "-"},
			"correctAnswer": correct,
		}
	}
	return entry
}

func TestScoreAnswersCountsCorrectIncorrectUnanswered(t *testing.T) {
	questions := snapshotQuestions(t, 4)
	answers := snapshotAnswers(t,
		answerEntry("q1", "B", "B"),
		answerEntry("q2", "A", "B"),
		answerEntry("q3", "", "B"),
		answerEntry("q4", "", ""),
	)

	results, err := ScoreAnswers(questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 1, results.Correct)
	assert.Equal(t, 1, results.Incorrect)
	assert.Equal(t, 2, results.Unanswered)
	assert.InDelta(t, 25.0, results.Score, 1e-9)
}

func TestScoreAnswersPerfectScore(t *testing.T) {
	questions := snapshotQuestions(t, 2)
	answers := snapshotAnswers(t,
		answerEntry("q1", "B", "B"),
		answerEntry("q2", "B", "B"),
	)

	results, err := ScoreAnswers(questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 2, results.Correct)
	assert.Equal(t, 0, results.Unanswered)
	assert.InDelta(t, 100.0, results.Score, 1e-9)
}

func TestScoreAnswersMissingSnapshotCountsIncorrect(t *testing.T) {
	// An answered slot without embedded question data cannot be verified
	// and never counts as correct.
	questions := snapshotQuestions(t, 1)
	answers := snapshotAnswers(t, answerEntry("q1", "B", ""))

	results, err := ScoreAnswers(questions, answers)
	require.NoError(t, err)

	assert.Equal(t, 0, results.Correct)
	assert.Equal(t, 1, results.Incorrect)
	assert.Zero(t, results.Score)
}

func TestScoreAnswersEmptyExam(t *testing.T) {
	results, err := ScoreAnswers(json.RawMessage(`[]`), json.RawMessage(`[]`))
	require.NoError(t, err)

	assert.Zero(t, results.Correct)
	assert.Zero(t, results.Score)
}

func TestScoreAnswersMalformedPayload(t *testing.T) {
	_, err := ScoreAnswers(json.RawMessage(`[]`), json.RawMessage(`{"not":"an array"}`))
	assert.Error(t, err)
}
