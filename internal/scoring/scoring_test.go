package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/openexam/openexam-backend/internal/model"
)

func question(qtype model.QuestionType, options []string, correct string, marks int) model.Question {
	return model.Question{
		ID:            uuid.New(),
		Type:          qtype,
		Options:       options,
		CorrectAnswer: correct,
		Marks:         marks,
		Active:        true,
	}
}

func TestCorrect_ResolutionTiers(t *testing.T) {
	options := []string{"Paris", "London", "Rome"}

	tests := []struct {
		name      string
		marker    string
		submitted string
		want      bool
	}{
		{name: "index vs index", marker: "1", submitted: "1", want: true},
		{name: "text vs text", marker: "London", submitted: "London", want: true},
		{name: "index marker, text submitted", marker: "1", submitted: "London", want: true},
		{name: "text marker, index submitted", marker: "London", submitted: "1", want: true},
		{name: "case and whitespace insensitive", marker: "London", submitted: "  LONDON ", want: true},
		{name: "wrong option text", marker: "1", submitted: "Paris", want: false},
		{name: "wrong option index", marker: "London", submitted: "0", want: false},
		{name: "index out of range", marker: "1", submitted: "7", want: false},
		{name: "negative index", marker: "1", submitted: "-1", want: false},
		{name: "non-numeric garbage", marker: "1", submitted: "banana", want: false},
		{name: "empty submission", marker: "1", submitted: "", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := question(model.QuestionTypeSingleSelect, options, tc.marker, 1)
			if got := Correct(tc.submitted, &q); got != tc.want {
				t.Errorf("Correct(%q) with marker %q = %v, want %v", tc.submitted, tc.marker, got, tc.want)
			}
		})
	}
}

func TestCorrect_FreeTextWithoutOptions(t *testing.T) {
	tests := []struct {
		name      string
		marker    string
		submitted string
		want      bool
	}{
		{name: "exact match", marker: "photosynthesis", submitted: "photosynthesis", want: true},
		{name: "case folded", marker: "Photosynthesis", submitted: "PHOTOSYNTHESIS", want: true},
		{name: "trimmed", marker: "42", submitted: " 42 ", want: true},
		{name: "mismatch", marker: "photosynthesis", submitted: "respiration", want: false},
		// No option list means the index tiers never resolve.
		{name: "numeric marker no options", marker: "1", submitted: "one", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := question(model.QuestionTypeShortAnswer, nil, tc.marker, 1)
			if got := Correct(tc.submitted, &q); got != tc.want {
				t.Errorf("Correct(%q) with marker %q = %v, want %v", tc.submitted, tc.marker, got, tc.want)
			}
		})
	}
}

func TestScore_Totals(t *testing.T) {
	q1 := question(model.QuestionTypeSingleSelect, []string{"a", "b"}, "0", 2)
	q2 := question(model.QuestionTypeTrueFalse, []string{"True", "False"}, "True", 3)
	q3 := question(model.QuestionTypeShortAnswer, nil, "blue", 1)

	answers := map[string]string{
		q1.ID.String(): "0",     // correct, 2 marks
		q2.ID.String(): "False", // wrong
		// q3 unanswered
	}

	got := Score(answers, []model.Question{q1, q2, q3})
	if got.Score != 2 {
		t.Errorf("Score = %d, want 2", got.Score)
	}
	if got.TotalMarks != 6 {
		t.Errorf("TotalMarks = %d, want 6", got.TotalMarks)
	}
}

func TestScore_EssayExcludedFromGradingButCounted(t *testing.T) {
	essay := question(model.QuestionTypeEssay, nil, "", 10)
	mc := question(model.QuestionTypeSingleSelect, []string{"x", "y"}, "1", 2)

	answers := map[string]string{
		// A verbatim "correct" essay answer must still earn nothing.
		essay.ID.String(): "",
		mc.ID.String():    "y",
	}

	got := Score(answers, []model.Question{essay, mc})
	if got.Score != 2 {
		t.Errorf("Score = %d, want 2 (essay must not be auto-graded)", got.Score)
	}
	if got.TotalMarks != 12 {
		t.Errorf("TotalMarks = %d, want 12 (essay weight still counts)", got.TotalMarks)
	}
}

func TestScore_InactiveQuestionsSkipped(t *testing.T) {
	active := question(model.QuestionTypeSingleSelect, []string{"a", "b"}, "0", 2)
	inactive := question(model.QuestionTypeSingleSelect, []string{"a", "b"}, "0", 5)
	inactive.Active = false

	answers := map[string]string{
		active.ID.String():   "0",
		inactive.ID.String(): "0",
	}

	got := Score(answers, []model.Question{active, inactive})
	if got.Score != 2 || got.TotalMarks != 2 {
		t.Errorf("got %+v, want Score=2 TotalMarks=2", got)
	}
}

func TestScore_ZeroMarksDefaultsToOne(t *testing.T) {
	q := question(model.QuestionTypeTrueFalse, []string{"True", "False"}, "True", 0)

	got := Score(map[string]string{q.ID.String(): "true"}, []model.Question{q})
	if got.Score != 1 || got.TotalMarks != 1 {
		t.Errorf("got %+v, want Score=1 TotalMarks=1", got)
	}
}

func TestScore_Deterministic(t *testing.T) {
	questions := []model.Question{
		question(model.QuestionTypeSingleSelect, []string{"a", "b", "c"}, "2", 2),
		question(model.QuestionTypeTrueFalse, []string{"True", "False"}, "False", 1),
		question(model.QuestionTypeFillBlank, nil, "gravity", 3),
		question(model.QuestionTypeEssay, nil, "", 5),
	}
	answers := map[string]string{
		questions[0].ID.String(): "c",
		questions[1].ID.String(): "False",
		questions[2].ID.String(): "Gravity",
	}

	first := Score(answers, questions)
	for i := 0; i < 10; i++ {
		if got := Score(answers, questions); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
	if first.Score != 6 || first.TotalMarks != 11 {
		t.Errorf("got %+v, want Score=6 TotalMarks=11", first)
	}
}

func TestReview_AgreesWithScore(t *testing.T) {
	questions := []model.Question{
		question(model.QuestionTypeSingleSelect, []string{"Paris", "London", "Rome"}, "1", 2),
		question(model.QuestionTypeShortAnswer, nil, "mitochondria", 1),
		question(model.QuestionTypeEssay, nil, "", 4),
		question(model.QuestionTypeTrueFalse, []string{"True", "False"}, "True", 1),
	}
	answers := map[string]string{
		questions[0].ID.String(): "London",
		questions[1].ID.String(): "ribosome",
		questions[2].ID.String(): "long form text",
	}

	outcomes := Review(answers, questions)
	if len(outcomes) != len(questions) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(questions))
	}

	var earned int
	for _, out := range outcomes {
		earned += out.Earned
	}
	if score := Score(answers, questions); earned != score.Score {
		t.Errorf("sum of Earned = %d, Score = %d; review must agree with scoring", earned, score.Score)
	}

	if outcomes[0].Correct == nil || !*outcomes[0].Correct {
		t.Errorf("outcome 0: want correct=true, got %v", outcomes[0].Correct)
	}
	if outcomes[1].Correct == nil || *outcomes[1].Correct {
		t.Errorf("outcome 1: want correct=false, got %v", outcomes[1].Correct)
	}
	if outcomes[2].Correct != nil {
		t.Errorf("outcome 2: essay must have nil correct, got %v", *outcomes[2].Correct)
	}
	if outcomes[3].Answered {
		t.Error("outcome 3: unanswered question reported as answered")
	}
}

func TestReview_SkipsInactive(t *testing.T) {
	active := question(model.QuestionTypeTrueFalse, []string{"True", "False"}, "True", 1)
	inactive := question(model.QuestionTypeTrueFalse, []string{"True", "False"}, "True", 1)
	inactive.Active = false

	outcomes := Review(nil, []model.Question{active, inactive})
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	if outcomes[0].Question.ID != active.ID {
		t.Error("wrong question survived the active filter")
	}
}
