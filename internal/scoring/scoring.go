// Package scoring turns submitted answers and question definitions into a
// deterministic score. It is the single grading policy for the whole service:
// attempt submission and review rendering both call into it, so the two can
// never disagree.
package scoring

import (
	"strconv"
	"strings"

	"github.com/openexam/openexam-backend/internal/model"
)

// Result is the outcome of grading one answer set against one question set.
type Result struct {
	Score      int `json:"score"`
	TotalMarks int `json:"total_marks"`
}

// Score grades answers against the exam's active questions.
//
// Every active question contributes its mark weight to TotalMarks. Essay
// questions are never auto-graded; an unanswered question earns nothing but
// still counts in the denominator. The correct-answer marker may have been
// authored as an option index or as literal text, and clients may submit
// either representation, so matching runs through three tiers in order:
// direct, index resolution, text resolution.
func Score(answers map[string]string, questions []model.Question) Result {
	var res Result
	for i := range questions {
		q := &questions[i]
		if !q.Active {
			continue
		}
		res.TotalMarks += weight(q)

		if !q.Type.IsAutoGradable() {
			continue
		}
		submitted, ok := answers[q.ID.String()]
		if !ok {
			continue
		}
		if Correct(submitted, q) {
			res.Score += weight(q)
		}
	}
	return res
}

// Correct reports whether a submitted value matches the question's
// correct-answer marker under the tiered resolution policy.
func Correct(submitted string, q *model.Question) bool {
	if matchDirect(submitted, q) {
		return true
	}
	if matchByIndex(submitted, q) {
		return true
	}
	return matchByText(submitted, q)
}

// matchDirect compares the normalized submitted value against the normalized
// marker. Covers index-vs-index, text-vs-text and free-text answers.
func matchDirect(submitted string, q *model.Question) bool {
	return normalize(submitted) == normalize(q.CorrectAnswer)
}

// matchByIndex treats the submitted value as an option index and compares the
// option at that position against the marker. Covers clients that submit an
// index against a marker authored as literal text.
func matchByIndex(submitted string, q *model.Question) bool {
	if len(q.Options) == 0 {
		return false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(submitted))
	if err != nil || idx < 0 || idx >= len(q.Options) {
		return false
	}
	return normalize(q.Options[idx]) == normalize(q.CorrectAnswer)
}

// matchByText compares the submitted value against the option text the
// marker denotes. Covers clients that submit literal text against a marker
// authored as an index: the marker is resolved through the option list, then
// matched like text. A marker that is already literal text was handled by the
// direct tier, so only index-encoded markers resolve here.
func matchByText(submitted string, q *model.Question) bool {
	if len(q.Options) == 0 {
		return false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(q.CorrectAnswer))
	if err != nil || idx < 0 || idx >= len(q.Options) {
		return false
	}
	return normalize(submitted) == normalize(q.Options[idx])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func weight(q *model.Question) int {
	if q.Marks <= 0 {
		return 1
	}
	return q.Marks
}
