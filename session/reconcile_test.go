package session

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float64Ptr(v float64) *float64 { return &v }

func persistedRecord(answers, doubts string) *PersistedSession {
	rec := &PersistedSession{
		SessionID:            "sess-1",
		UserID:               "user-1",
		ExamKind:             KindTimed,
		Questions:            testQuestions(3),
		TimeLeftSeconds:      float64Ptr(120),
		TotalTimeSeconds:     float64Ptr(600),
		CurrentQuestionIndex: float64Ptr(1),
		Status:               StatusInProgress,
	}
	if answers != "" {
		rec.Answers = json.RawMessage(answers)
	}
	if doubts != "" {
		rec.DoubtFlags = json.RawMessage(doubts)
	}
	return rec
}

func TestReconcileOldestScalarShape(t *testing.T) {
	sess := Reconcile(persistedRecord(`[null, "B", null]`, ""), zerolog.Nop())

	require.Len(t, sess.Answers, 3)
	assert.False(t, sess.Answers[0].Answered())
	assert.Equal(t, "B", sess.Answers[1].SelectedAnswer)
	assert.False(t, sess.Answers[2].Answered())

	for _, a := range sess.Answers {
		require.NotNil(t, a.QuestionData, "snapshots re-derived from the question list")
	}
}

func TestReconcileKeyedShape(t *testing.T) {
	raw := `[
		{"questionId": "question_0", "selectedAnswer": "A"},
		null,
		{"questionId": "question_2", "selectedAnswer": "option_2", "markedAsDoubt": true}
	]`
	sess := Reconcile(persistedRecord(raw, ""), zerolog.Nop())

	assert.Equal(t, "A", sess.Answers[0].SelectedAnswer)
	assert.False(t, sess.Answers[1].Answered())
	assert.Equal(t, "B", sess.Answers[2].SelectedAnswer, "option_N keys normalize to literal text")
	assert.True(t, sess.Answers[2].MarkedAsDoubt)
}

func TestReconcileKeyedShapeMatchesByQuestionID(t *testing.T) {
	// Elements stored out of order relative to the question list: the
	// questionId on each element decides the slot, not the array index.
	rec := persistedRecord("", "")
	rec.Questions[0].ID = "q-alpha"
	rec.Questions[1].ID = "q-beta"
	rec.Questions[2].ID = "q-gamma"
	rec.Answers = json.RawMessage(`[
		{"questionId": "q-gamma", "selectedAnswer": "C"},
		{"questionId": "q-alpha", "selectedAnswer": "A", "markedAsDoubt": true},
		{"questionId": "q-beta", "selectedAnswer": "D"}
	]`)
	sess := Reconcile(rec, zerolog.Nop())

	require.Len(t, sess.Answers, 3)
	assert.Equal(t, "A", sess.Answers[0].SelectedAnswer)
	assert.True(t, sess.Answers[0].MarkedAsDoubt)
	assert.Equal(t, "D", sess.Answers[1].SelectedAnswer)
	assert.Equal(t, "C", sess.Answers[2].SelectedAnswer)
}

func TestReconcileKeyedShapeFallsBackToPosition(t *testing.T) {
	// Unresolvable ids keep the old positional behavior, and elements
	// beyond the question list are dropped instead of panicking.
	raw := `[
		{"questionId": "", "selectedAnswer": "A"},
		{"questionId": "gone", "selectedAnswer": "B"},
		null,
		{"questionId": "also-gone", "selectedAnswer": "C"}
	]`
	sess := Reconcile(persistedRecord(raw, ""), zerolog.Nop())

	require.Len(t, sess.Answers, 3)
	assert.Equal(t, "A", sess.Answers[0].SelectedAnswer)
	assert.Equal(t, "B", sess.Answers[1].SelectedAnswer)
	assert.False(t, sess.Answers[2].Answered())
}

func TestReconcileSnapshotShapeKeepsStoredSnapshot(t *testing.T) {
	// The stored snapshot names different options than the live question
	// list: the snapshot must win, protecting review against bank changes.
	raw := `[
		{"questionId": "question_0", "selectedAnswer": "Old-B",
		 "questionData": {"questionId": "question_0", "question": "old text",
		                  "options": ["Old-A", "Old-B", "-", "-", "-"],
		                  "correctAnswer": "Old-A"}},
		null, null
	]`
	sess := Reconcile(persistedRecord(raw, ""), zerolog.Nop())

	a := sess.Answers[0]
	assert.Equal(t, "Old-B", a.SelectedAnswer)
	require.NotNil(t, a.QuestionData)
	assert.Equal(t, "old text", a.QuestionData.Text)
	require.NotNil(t, a.IsCorrect)
	assert.False(t, *a.IsCorrect)
}

func TestReconcileLegacyKeyedMap(t *testing.T) {
	sess := Reconcile(persistedRecord(`{"0": "B", "question_2": 0}`, ""), zerolog.Nop())

	assert.Equal(t, "B", sess.Answers[0].SelectedAnswer)
	assert.False(t, sess.Answers[1].Answered())
	assert.Equal(t, "A", sess.Answers[2].SelectedAnswer)
}

func TestReconcileDoubtFlagEnvelopes(t *testing.T) {
	plain := Reconcile(persistedRecord("", `{"question_1": true}`), zerolog.Nop())
	assert.True(t, plain.Answers[1].MarkedAsDoubt)

	wrapped := Reconcile(persistedRecord("", `{"dataType":"Map","value":{"question_0":true,"question_2":false}}`), zerolog.Nop())
	assert.True(t, wrapped.Answers[0].MarkedAsDoubt)
	assert.False(t, wrapped.Answers[2].MarkedAsDoubt)
}

func TestReconcileSanitizesTimes(t *testing.T) {
	rec := persistedRecord("", "")
	rec.TimeLeftSeconds = float64Ptr(-30)
	rec.TotalTimeSeconds = nil
	rec.CurrentQuestionIndex = float64Ptr(99)

	sess := Reconcile(rec, zerolog.Nop())
	policy := PolicyFor(KindTimed)
	assert.Equal(t, policy.DefaultDurationSeconds, sess.TotalTimeSeconds)
	assert.Equal(t, sess.TotalTimeSeconds, sess.TimeLeftSeconds, "negative time falls back, never reaches the timer")
	assert.Equal(t, 0, sess.CurrentQuestionIndex)
}

func TestReconcileUnknownShapeStartsFresh(t *testing.T) {
	sess := Reconcile(persistedRecord(`[true, false]`, ""), zerolog.Nop())

	require.Len(t, sess.Answers, 3)
	for _, a := range sess.Answers {
		assert.False(t, a.Answered())
		assert.NotNil(t, a.QuestionData)
	}
	assert.Equal(t, "sess-1", sess.SessionID, "the id survives so later saves update the same record")
}

func TestReconcileVerbatimFieldsAndStatus(t *testing.T) {
	sess := Reconcile(persistedRecord(`[]`, ""), zerolog.Nop())
	assert.Equal(t, 120, sess.TimeLeftSeconds)
	assert.Equal(t, 600, sess.TotalTimeSeconds)
	assert.Equal(t, 1, sess.CurrentQuestionIndex)
	assert.Equal(t, StatusInProgress, sess.Status)

	bad := persistedRecord(`[]`, "")
	bad.Status = Status("corrupted")
	assert.Equal(t, StatusInProgress, Reconcile(bad, zerolog.Nop()).Status)
}

func TestResumeRoundTrip(t *testing.T) {
	// Feed the reconciler's output back through the snapshot formatter and
	// compare selections and doubt marks per index.
	rec := persistedRecord(`[null, "B", "option_1"]`, `{"question_0": true}`)
	sess := Reconcile(rec, zerolog.Nop())

	store := NewStore(sess.Questions, PolicyFor(sess.Kind))
	store.restore(sess.Answers, sess.CurrentQuestionIndex)

	reserialized := store.Answers()
	require.Len(t, reserialized, 3)
	assert.False(t, reserialized[0].Answered())
	assert.True(t, reserialized[0].MarkedAsDoubt)
	assert.Equal(t, "B", reserialized[1].SelectedAnswer)
	assert.Equal(t, "A", reserialized[2].SelectedAnswer)

	// A second reconcile over the canonical shape is stable.
	raw, err := json.Marshal(reserialized)
	require.NoError(t, err)
	rec2 := persistedRecord(string(raw), "")
	sess2 := Reconcile(rec2, zerolog.Nop())
	for i := range sess.Answers {
		assert.Equal(t, sess.Answers[i].SelectedAnswer, sess2.Answers[i].SelectedAnswer)
		assert.Equal(t, sess.Answers[i].MarkedAsDoubt, sess2.Answers[i].MarkedAsDoubt)
	}
}
