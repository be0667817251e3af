package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// OptionSentinel fills unused option slots. Snapshots always carry exactly
// five slots; consumers filter the sentinel out before display.
const OptionSentinel = "-"

// OptionSlotCount is the fixed number of option slots per question.
const OptionSlotCount = 5

var optionKeyRe = regexp.MustCompile(`^option_([1-9][0-9]*)$`)

// OptionSlots returns the question's five option slots, sentinel-filled.
// If the options array is present it is authoritative; otherwise the flat
// option_1..option_5 fields are used. The layouts are never merged.
func OptionSlots(q *Question) [5]string {
	var slots [5]string
	if len(q.Options) > 0 {
		for i := 0; i < OptionSlotCount; i++ {
			if i < len(q.Options) && strings.TrimSpace(q.Options[i]) != "" {
				slots[i] = q.Options[i]
			} else {
				slots[i] = OptionSentinel
			}
		}
		return slots
	}
	flat := [5]string{q.Option1, q.Option2, q.Option3, q.Option4, q.Option5}
	for i, v := range flat {
		if strings.TrimSpace(v) == "" {
			slots[i] = OptionSentinel
		} else {
			slots[i] = v
		}
	}
	return slots
}

// PresentOptions filters sentinel slots out of a snapshot's option list.
func PresentOptions(slots [5]string) []string {
	out := make([]string, 0, OptionSlotCount)
	for _, v := range slots {
		if v != OptionSentinel && strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// QuestionKey returns the stable key for a question: its own id, or a
// synthesized question_<pos> key for client-only item sets without one.
func QuestionKey(q *Question, pos int) string {
	if q != nil && q.ID != "" {
		return q.ID
	}
	return fmt.Sprintf("question_%d", pos)
}

// CorrectText resolves a question's correct-answer reference (option index
// or literal text) to the literal option text. Returns "" when the
// reference is absent or does not resolve against the option set.
func CorrectText(q *Question) string {
	if q == nil || q.Answer.IsZero() {
		return ""
	}
	slots := OptionSlots(q)
	if q.Answer.IsIndex {
		if i := q.Answer.Index; i >= 0 && i < OptionSlotCount && slots[i] != OptionSentinel {
			return slots[i]
		}
		return ""
	}
	// A literal reference may itself be an option_N key in older data.
	return normalizeAgainst(slots, q.Answer.Text)
}

// NormalizeSelection maps any historical selection form to the canonical
// literal option text. Accepted raw forms:
//
//   - nil → unanswered
//   - int / int64 / float64 (JSON numbers): zero-based option index
//   - "option_N": one-based option key
//   - anything else: literal option text, kept verbatim
//
// An index that points at a sentinel or out of range yields "" so a stale
// persisted index on a reshuffled question degrades to unanswered instead
// of silently selecting the wrong option.
func NormalizeSelection(slots [5]string, raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case int:
		return indexedOption(slots, v)
	case int64:
		return indexedOption(slots, int(v))
	case float64:
		return indexedOption(slots, int(v))
	case string:
		return normalizeAgainst(slots, v)
	default:
		return ""
	}
}

func indexedOption(slots [5]string, i int) string {
	if i < 0 || i >= OptionSlotCount || slots[i] == OptionSentinel {
		return ""
	}
	return slots[i]
}

func normalizeAgainst(slots [5]string, v string) string {
	if v == "" || v == OptionSentinel {
		return ""
	}
	if m := optionKeyRe.FindStringSubmatch(v); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return indexedOption(slots, n-1)
		}
	}
	return v
}

// Snapshot builds the denormalized question snapshot embedded in answers.
func Snapshot(q *Question, pos int) *QuestionSnapshot {
	return &QuestionSnapshot{
		QuestionID:    QuestionKey(q, pos),
		Text:          q.Text,
		Options:       OptionSlots(q),
		CorrectAnswer: CorrectText(q),
		Category:      q.Category,
		ImageURL:      q.ImageURL,
		Explanation:   q.Explanation,
	}
}

// BuildAnswer is the snapshot formatter: it converts a question plus a raw
// selection into the canonical durable Answer record. The snapshot is
// populated here, at answer time, never lazily from a live lookup.
func BuildAnswer(q *Question, pos int, rawSelection any) Answer {
	snap := Snapshot(q, pos)
	selected := NormalizeSelection(snap.Options, rawSelection)

	var isCorrect *bool
	if selected != "" && snap.CorrectAnswer != "" {
		v := selected == snap.CorrectAnswer
		isCorrect = &v
	}

	return Answer{
		QuestionID:     snap.QuestionID,
		SelectedAnswer: selected,
		IsCorrect:      isCorrect,
		QuestionData:   snap,
	}
}
