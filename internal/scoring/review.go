package scoring

import (
	"github.com/openexam/openexam-backend/internal/model"
)

// QuestionOutcome is one question's grading detail for a review view.
// Correct is nil for questions the engine does not auto-grade (essays),
// mirroring how Score excludes them.
type QuestionOutcome struct {
	Question  model.Question `json:"question"`
	Submitted string         `json:"submitted,omitempty"`
	Answered  bool           `json:"answered"`
	Correct   *bool          `json:"correct,omitempty"`
	Earned    int            `json:"earned"`
}

// Review produces per-question outcomes using the exact same resolution
// tiers as Score, so a review screen can never disagree with the score
// stored at submission time.
func Review(answers map[string]string, questions []model.Question) []QuestionOutcome {
	outcomes := make([]QuestionOutcome, 0, len(questions))
	for i := range questions {
		q := questions[i]
		if !q.Active {
			continue
		}

		out := QuestionOutcome{Question: q}
		out.Submitted, out.Answered = answers[q.ID.String()]

		if q.Type.IsAutoGradable() && out.Answered {
			correct := Correct(out.Submitted, &q)
			out.Correct = &correct
			if correct {
				out.Earned = weight(&q)
			}
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}
