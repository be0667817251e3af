package session

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// resumeShape identifies the historical layout of a persisted answers field.
type resumeShape int

const (
	shapeUnknown resumeShape = iota
	shapeEmpty
	shapeScalarArray   // oldest: bare array of scalar selections
	shapeKeyedArray    // prior: array of {questionId, selectedAnswer}
	shapeSnapshotArray // current: full Answer records with questionData
	shapeLegacyMap     // oldest of all: keyed map, no array
)

func (s resumeShape) String() string {
	switch s {
	case shapeEmpty:
		return "empty"
	case shapeScalarArray:
		return "scalar_array"
	case shapeKeyedArray:
		return "keyed_array"
	case shapeSnapshotArray:
		return "snapshot_array"
	case shapeLegacyMap:
		return "legacy_map"
	}
	return "unknown"
}

// persistedAnswer is the lenient element decoding shared by the keyed and
// snapshot shapes. SelectedAnswer is any because historical rows hold
// indexes, option_N keys or literal text.
type persistedAnswer struct {
	QuestionID     string            `json:"questionId"`
	SelectedAnswer any               `json:"selectedAnswer"`
	MarkedAsDoubt  bool              `json:"markedAsDoubt"`
	QuestionData   *QuestionSnapshot `json:"questionData"`
}

// Reconcile maps a persisted record, whatever its vintage, into a fully
// populated ExamSession. It never fails: unrecognized structure degrades to
// a fresh answer sheet over the record's question list, and no NaN or
// negative time ever reaches the timer.
func Reconcile(rec *PersistedSession, log zerolog.Logger) *ExamSession {
	log = log.With().Str("component", "resume_reconciler").Logger()

	policy := PolicyFor(rec.ExamKind)
	total := sanitizeSeconds(rec.TotalTimeSeconds, policy.DefaultDurationSeconds)
	left := sanitizeSeconds(rec.TimeLeftSeconds, total)
	if left > total {
		left = total
	}

	cursor := 0
	if rec.CurrentQuestionIndex != nil {
		v := *rec.CurrentQuestionIndex
		if !math.IsNaN(v) && v >= 0 && int(v) < len(rec.Questions) {
			cursor = int(v)
		}
	}

	status := rec.Status
	if !status.valid() {
		status = StatusInProgress
	}

	shape := detectShape(rec.Answers)
	log.Info().
		Str("session_id", rec.SessionID).
		Str("shape", shape.String()).
		Str("status", string(status)).
		Msg("resume shape detected")

	answers := adaptAnswers(rec, shape)
	applyDoubtFlags(answers, rec.Questions, unwrapDoubtFlags(rec.DoubtFlags))

	return &ExamSession{
		SessionID:            rec.SessionID,
		UserID:               rec.UserID,
		Kind:                 rec.ExamKind,
		Status:               status,
		TotalTimeSeconds:     total,
		TimeLeftSeconds:      left,
		CurrentQuestionIndex: cursor,
		Questions:            rec.Questions,
		Answers:              answers,
	}
}

// detectShape samples the first non-null element's structure.
func detectShape(raw json.RawMessage) resumeShape {
	if len(raw) == 0 || string(raw) == "null" {
		return shapeEmpty
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err == nil {
		if len(elems) == 0 {
			return shapeEmpty
		}
		for _, el := range elems {
			trimmed := strings.TrimSpace(string(el))
			if trimmed == "" || trimmed == "null" {
				continue
			}
			if !strings.HasPrefix(trimmed, "{") {
				return shapeScalarArray
			}
			var probe map[string]json.RawMessage
			if err := json.Unmarshal(el, &probe); err != nil {
				return shapeUnknown
			}
			if _, ok := probe["questionData"]; ok {
				return shapeSnapshotArray
			}
			if _, ok := probe["questionId"]; ok {
				return shapeKeyedArray
			}
			return shapeUnknown
		}
		// All-null array: treat as the oldest shape, fully unanswered.
		return shapeScalarArray
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err == nil {
		return shapeLegacyMap
	}
	return shapeUnknown
}

// adaptAnswers maps the persisted answers through the shape's adapter into
// canonical records, index-aligned with the question list. Every produced
// record carries a populated snapshot, re-derived from the question list
// when the persisted shape lacks one.
func adaptAnswers(rec *PersistedSession, shape resumeShape) []Answer {
	questions := rec.Questions
	answers := make([]Answer, len(questions))

	fill := func(i int, raw any) {
		answers[i] = BuildAnswer(&questions[i], i, raw)
	}

	switch shape {
	case shapeScalarArray:
		var scalars []any
		if err := json.Unmarshal(rec.Answers, &scalars); err != nil {
			scalars = nil
		}
		for i := range questions {
			if i < len(scalars) {
				fill(i, scalars[i])
			} else {
				fill(i, nil)
			}
		}

	case shapeKeyedArray:
		var elems []*persistedAnswer
		if err := json.Unmarshal(rec.Answers, &elems); err != nil {
			elems = nil
		}
		for i := range questions {
			fill(i, nil)
		}
		// Each element names its question; array position is only the
		// fallback, so rows whose order drifted from the question list
		// still land on the right slots.
		for pos, el := range elems {
			if el == nil {
				continue
			}
			i, ok := resolveQuestionKey(el.QuestionID, questions)
			if !ok {
				if pos >= len(questions) {
					continue
				}
				i = pos
			}
			fill(i, el.SelectedAnswer)
			answers[i].MarkedAsDoubt = el.MarkedAsDoubt
		}

	case shapeSnapshotArray:
		var elems []*persistedAnswer
		if err := json.Unmarshal(rec.Answers, &elems); err != nil {
			elems = nil
		}
		for i := range questions {
			if i >= len(elems) || elems[i] == nil || elems[i].QuestionData == nil {
				fill(i, nil)
				continue
			}
			el := elems[i]
			// The stored snapshot is authoritative: it must survive even
			// if the question bank has since changed.
			selected := NormalizeSelection(el.QuestionData.Options, el.SelectedAnswer)
			var isCorrect *bool
			if selected != "" && el.QuestionData.CorrectAnswer != "" {
				v := selected == el.QuestionData.CorrectAnswer
				isCorrect = &v
			}
			answers[i] = Answer{
				QuestionID:     el.QuestionID,
				SelectedAnswer: selected,
				IsCorrect:      isCorrect,
				MarkedAsDoubt:  el.MarkedAsDoubt,
				QuestionData:   el.QuestionData,
			}
			if answers[i].QuestionID == "" {
				answers[i].QuestionID = QuestionKey(&questions[i], i)
			}
		}

	case shapeLegacyMap:
		var keyed map[string]any
		if err := json.Unmarshal(rec.Answers, &keyed); err != nil {
			keyed = nil
		}
		for i := range questions {
			fill(i, nil)
		}
		for key, raw := range keyed {
			if i, ok := resolveQuestionKey(key, questions); ok {
				fill(i, raw)
			}
		}

	default:
		// shapeEmpty and shapeUnknown both start fresh.
		for i := range questions {
			fill(i, nil)
		}
	}

	return answers
}

// unwrapDoubtFlags normalizes both persisted doubt layouts, the plain keyed
// map and the driver Map envelope {dataType:"Map", value:{...}}, into the
// same keyed-boolean form.
func unwrapDoubtFlags(raw json.RawMessage) map[string]bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var envelope struct {
		DataType string          `json:"dataType"`
		Value    map[string]bool `json:"value"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.DataType == "Map" {
		return envelope.Value
	}

	var plain map[string]bool
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return nil
}

func applyDoubtFlags(answers []Answer, questions []Question, flags map[string]bool) {
	for key, marked := range flags {
		if !marked {
			continue
		}
		if i, ok := resolveQuestionKey(key, questions); ok && i < len(answers) {
			answers[i].MarkedAsDoubt = true
		}
	}
}

// resolveQuestionKey maps a persisted key (question id, question_<n>, or a
// bare index string) to the question's position.
func resolveQuestionKey(key string, questions []Question) (int, bool) {
	for i := range questions {
		if questions[i].ID != "" && questions[i].ID == key {
			return i, true
		}
	}
	trimmed := strings.TrimPrefix(key, "question_")
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 0 && n < len(questions) {
		return n, true
	}
	return 0, false
}

// sanitizeSeconds validates a persisted time field. NaN, infinite or
// negative values fall back; the timer never sees a bad duration.
func sanitizeSeconds(v *float64, fallback int) int {
	if v == nil {
		return fallback
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return fallback
	}
	return int(f)
}
